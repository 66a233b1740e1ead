// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package fetcher // import "newshub.app/internal/fetcher"

import (
	"context"

	"newshub.app/internal/model"
)

// Result is the raw content retrieved from a source, before parsing.
type Result struct {
	Body         []byte
	ContentType  string
	StatusCode   int
	ETag         string
	LastModified string
}

// Strategy retrieves the raw content of one source. Implementations must be
// cancellable through ctx: the worker pool abandons a fetch when its task
// timeout expires.
type Strategy interface {
	Fetch(ctx context.Context, source *model.FeedSource) (*Result, error)
}

// Options configures the strategy set.
type Options struct {
	UserAgent       string
	ProxyURL        string
	AnonymizedProxy string
	BrowserEndpoint string
	HostRate        float64
}

// NewSelector wires the three fetch strategies from one set of options.
func NewSelector(opts Options) *Selector {
	limiter := newHostLimiter(opts.HostRate)
	return &Selector{
		simple: NewSimpleHTTP(opts.UserAgent, opts.ProxyURL, limiter),
		browser: &BrowserAutomation{
			endpoint:  opts.BrowserEndpoint,
			userAgent: opts.UserAgent,
		},
		anonymized: NewSimpleHTTP(opts.UserAgent, opts.AnonymizedProxy,
			limiter),
	}
}

// Selector picks a Strategy by the source's configured strategy hint.
type Selector struct {
	simple     *SimpleHTTP
	browser    *BrowserAutomation
	anonymized *SimpleHTTP
}

func (self *Selector) ForSource(source *model.FeedSource) Strategy {
	switch source.FetchStrategy() {
	case model.StrategyBrowser:
		return self.browser
	case model.StrategyAnonymized:
		return self.anonymized
	}
	return self.simple
}
