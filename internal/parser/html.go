// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser // import "newshub.app/internal/parser"

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newshub.app/internal/model"
)

// parseHTML extracts article links from an HTML page using the CSS selector
// configured on the source. Each matched element should be, or contain, an
// anchor; the anchor text becomes the title.
func parseHTML(b []byte, source *model.FeedSource) (model.Articles, error) {
	if source.Selector == "" {
		return nil, errors.New("parser: HTML source without selector")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parser: parse HTML: %w", err)
	}

	base, _ := url.Parse(source.URL)
	now := time.Now()

	var articles model.Articles
	doc.Find(source.Selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			a := s.Find("a").First()
			if href, ok = a.Attr("href"); !ok {
				return
			}
		}

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			return
		}

		articles = append(articles, model.Article{
			SourceID:    source.ID,
			URL:         absoluteURL(base, href),
			Title:       title,
			PublishedAt: now,
		})
	})
	return articles, nil
}
