// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package model // import "newshub.app/internal/model"

import "time"

// Fetch strategies selectable per source.
const (
	StrategyHTTP       = "http"
	StrategyBrowser    = "browser"
	StrategyAnonymized = "anonymized"
)

// FeedSource is the immutable configuration of one external feed, loaded at
// startup from the sources file.
type FeedSource struct {
	ID            string `yaml:"id" validate:"required"`
	URL           string `yaml:"url" validate:"required,url"`
	Strategy      string `yaml:"strategy" validate:"omitempty,oneof=http browser anonymized"`
	ScheduleHours int    `yaml:"schedule_hours" validate:"omitempty,min=1"`
	Selector      string `yaml:"selector"`
}

// FetchStrategy returns the configured strategy hint, defaulting to plain
// HTTP.
func (self *FeedSource) FetchStrategy() string {
	if self.Strategy == "" {
		return StrategyHTTP
	}
	return self.Strategy
}

// ScheduleEvery returns how often the source should be refreshed.
func (self *FeedSource) ScheduleEvery() time.Duration {
	hours := self.ScheduleHours
	if hours < 1 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// SourceStatus is the fetch metadata kept in the durable cache for
// operational views: when the source was last fetched and how it went.
type SourceStatus struct {
	LastFetchAt  time.Time `json:"last_fetch_at"`
	LastStatus   string    `json:"last_status"`
	LastError    string    `json:"last_error,omitempty"`
	ArticleCount int       `json:"article_count"`
}
