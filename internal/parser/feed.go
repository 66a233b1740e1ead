// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser // import "newshub.app/internal/parser"

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/dsh2dsh/gofeed/v2/atom"
	"github.com/dsh2dsh/gofeed/v2/options"
	"github.com/dsh2dsh/gofeed/v2/rss"

	"newshub.app/internal/model"
)

func parseRSS(b []byte, source *model.FeedSource) (model.Articles, error) {
	parsed, err := rss.NewParser().Parse(bytes.NewReader(b),
		options.WithSkipUnknownElements(true))
	if err != nil {
		return nil, fmt.Errorf("parser: parse RSS feed: %w", err)
	}

	base, _ := url.Parse(source.URL)
	articles := make(model.Articles, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		a := model.Article{
			SourceID:    source.ID,
			URL:         absoluteURL(base, item.Link()),
			Title:       strings.TrimSpace(item.GetTitle()),
			Summary:     item.GetContent(),
			ImageURL:    rssImageURL(item),
			PublishedAt: published(item.GetPublishedParsed()),
		}
		if a.URL == "" && a.Title == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func rssImageURL(item *rss.Item) string {
	for enc := range item.AllEnclosures() {
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func parseAtom(b []byte, source *model.FeedSource) (model.Articles, error) {
	parsed, err := atom.NewParser().Parse(bytes.NewReader(b),
		options.WithSkipUnknownElements(true))
	if err != nil {
		return nil, fmt.Errorf("parser: parse Atom feed: %w", err)
	}

	base, _ := url.Parse(source.URL)
	articles := make(model.Articles, 0, len(parsed.Entries))
	for _, item := range parsed.Entries {
		a := model.Article{
			SourceID:    source.ID,
			URL:         absoluteURL(base, item.GetLink()),
			Title:       strings.TrimSpace(item.Title),
			Summary:     item.GetContent(),
			PublishedAt: published(item.GetPublishedParsed()),
		}
		if a.URL == "" && a.Title == "" {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}
