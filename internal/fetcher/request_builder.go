// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package fetcher // import "newshub.app/internal/fetcher"

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/klauspost/compress/gzhttp"
)

const defaultAcceptHeader = "application/xml, application/atom+xml, application/rss+xml, application/rdf+xml, application/feed+json, text/html, */*;q=0.9"

// RequestBuilder assembles the HTTP client and request used by the plain
// HTTP strategies.
type RequestBuilder struct {
	headers  http.Header
	proxyURL *url.URL
}

func NewRequestBuilder() *RequestBuilder {
	r := &RequestBuilder{headers: make(http.Header)}
	r.headers.Set("Accept", defaultAcceptHeader)
	return r
}

func (r *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	r.headers.Set(key, value)
	return r
}

func (r *RequestBuilder) WithUserAgent(userAgent string) *RequestBuilder {
	if userAgent != "" {
		r.headers.Set("User-Agent", userAgent)
	}
	return r
}

func (r *RequestBuilder) WithProxyURL(rawURL string) (*RequestBuilder, error) {
	if rawURL == "" {
		return r, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: invalid proxy URL %q: %w", rawURL, err)
	}
	r.proxyURL = u
	return r, nil
}

// Client builds the HTTP client. Responses are transparently decompressed by
// the gzip transport wrapper.
func (r *RequestBuilder) Client() *http.Client {
	transport := &http.Transport{}
	if r.proxyURL != nil {
		transport.Proxy = http.ProxyURL(r.proxyURL)
	}
	return &http.Client{Transport: gzhttp.Transport(transport)}
}

func (r *RequestBuilder) Request(ctx context.Context, requestURL string,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL,
		nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request %q: %w", requestURL, err)
	}
	req.Header = r.headers.Clone()
	return req, nil
}
