// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package fetcher // import "newshub.app/internal/fetcher"

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"newshub.app/internal/model"
)

// BrowserAutomation delegates fetching to an external headless-browser
// renderer service. Only the HTTP contract lives here; the browser mechanics
// are the renderer's problem.
type BrowserAutomation struct {
	endpoint  string
	userAgent string
}

type renderRequest struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (self *BrowserAutomation) Fetch(ctx context.Context,
	source *model.FeedSource,
) (*Result, error) {
	if self.endpoint == "" {
		return nil, &Error{Kind: KindPermanent,
			Err: errors.New("fetcher: browser endpoint not configured")}
	}

	payload, err := json.Marshal(&renderRequest{
		URL:       source.URL,
		UserAgent: self.userAgent,
	})
	if err != nil {
		return nil, &Error{Kind: KindPermanent,
			Err: fmt.Errorf("fetcher: marshal render request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		self.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindPermanent,
			Err: fmt.Errorf("fetcher: new render request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, classify(fmt.Errorf("fetcher: render %q: %w", source.URL,
			err))
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		return nil, &Error{Kind: kind,
			Err: fmt.Errorf("fetcher: render %q: unexpected status %d",
				source.URL, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classify(fmt.Errorf("fetcher: read rendered %q: %w",
			source.URL, err))
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}
