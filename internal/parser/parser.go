// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser // import "newshub.app/internal/parser"

import (
	"bytes"
	"errors"
	"net/url"
	"time"

	"newshub.app/internal/model"
)

var ErrFormatNotDetected = errors.New(
	"parser: unable to detect content format")

const (
	formatUnknown = iota
	formatRSS
	formatAtom
	formatHTML
)

// Parse analyzes raw fetched content and returns normalized articles. Feed
// formats are preferred; HTML needs a selector configured on the source.
func Parse(raw []byte, source *model.FeedSource) (model.Articles, error) {
	switch detectFormat(raw) {
	case formatRSS:
		return parseRSS(raw, source)
	case formatAtom:
		return parseAtom(raw, source)
	case formatHTML:
		return parseHTML(raw, source)
	}

	if source.Selector != "" {
		return parseHTML(raw, source)
	}
	return nil, ErrFormatNotDetected
}

func detectFormat(raw []byte) int {
	head := raw
	if len(head) > 2048 {
		head = head[:2048]
	}
	head = bytes.ToLower(head)

	switch {
	case bytes.Contains(head, []byte("<rss")) ||
		bytes.Contains(head, []byte("<rdf")):
		return formatRSS
	case bytes.Contains(head, []byte("<feed")):
		return formatAtom
	case bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<!doctype html")):
		return formatHTML
	}
	return formatUnknown
}

// absoluteURL resolves link against the source URL. Unparsable links are
// returned untouched.
func absoluteURL(base *url.URL, link string) string {
	u, err := url.Parse(link)
	if err != nil || base == nil {
		return link
	} else if u.IsAbs() {
		return link
	}
	return base.ResolveReference(u).String()
}

func published(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}
