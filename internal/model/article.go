// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package model // import "newshub.app/internal/model"

import "time"

// Article is one normalized item extracted from a fetched source.
type Article struct {
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

type Articles []Article
