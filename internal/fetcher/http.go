// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package fetcher // import "newshub.app/internal/fetcher"

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"newshub.app/internal/model"
)

// Response bodies larger than this are cut off rather than buffered.
const maxBodySize = 10 << 20

// NewSimpleHTTP returns the plain HTTP fetch strategy. With a non-empty
// proxy it doubles as the anonymized-network strategy: all traffic is routed
// through the configured proxy.
func NewSimpleHTTP(userAgent, proxyURL string, limiter *hostLimiter,
) *SimpleHTTP {
	return &SimpleHTTP{
		userAgent: userAgent,
		proxyURL:  proxyURL,
		limiter:   limiter,
	}
}

type SimpleHTTP struct {
	userAgent string
	proxyURL  string
	limiter   *hostLimiter
}

func (self *SimpleHTTP) Fetch(ctx context.Context,
	source *model.FeedSource,
) (*Result, error) {
	u, err := url.Parse(source.URL)
	if err != nil {
		return nil, &Error{Kind: KindPermanent,
			Err: fmt.Errorf("fetcher: invalid source URL %q: %w", source.URL,
				err)}
	}

	if err := self.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, classify(err)
	}

	builder, err := NewRequestBuilder().
		WithUserAgent(self.userAgent).
		WithProxyURL(self.proxyURL)
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Err: err}
	}

	req, err := builder.Request(ctx, source.URL)
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Err: err}
	}

	resp, err := builder.Client().Do(req)
	if err != nil {
		return nil, classify(fmt.Errorf("fetcher: get %q: %w", source.URL,
			err))
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		return nil, &Error{Kind: kind,
			Err: fmt.Errorf("fetcher: get %q: unexpected status %d",
				source.URL, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classify(fmt.Errorf("fetcher: read body of %q: %w",
			source.URL, err))
	}

	return &Result{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
