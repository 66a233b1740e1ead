// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package dedup // import "newshub.app/internal/dedup"

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"

	"newshub.app/internal/model"
)

// Tracking query parameters stripped from article URLs before hashing.
var trackingParams = map[string]struct{}{
	"__twitter_impression": {},
	"fbclid":               {},
	"gclid":                {},
	"igshid":               {},
	"mc_cid":               {},
	"mc_eid":               {},
	"ref":                  {},
	"ref_src":              {},
	"yclid":                {},
}

var titleFolder = cases.Fold()

// Fingerprint returns the dedup hash of an article: xxhash over its
// normalized URL and normalized title. Two sightings of the same story with
// different tracking parameters or title casing produce the same hash.
func Fingerprint(a *model.Article) string {
	h := xxhash.New()
	h.WriteString(NormalizeURL(a.URL))
	h.WriteString("\n")
	h.WriteString(NormalizeTitle(a.Title))
	return strconv.FormatUint(h.Sum64(), 16)
}

// NormalizeURL lowercases scheme and host, drops the fragment and strips
// tracking query parameters. Unparsable URLs are returned trimmed as-is.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if _, ok := trackingParams[name]; ok ||
				strings.HasPrefix(name, "utm_") {
				q.Del(name)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// NormalizeTitle case-folds the title and collapses runs of whitespace.
func NormalizeTitle(s string) string {
	return titleFolder.String(strings.Join(strings.Fields(s), " "))
}
