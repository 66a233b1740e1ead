// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bucket is the shared object storage both hosts can reach. Objects are
// immutable once written; keys embed the resource id and publish time.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// updateKey returns the deterministic object key for one update:
// {prefix}{resource-id}/{published-at-nanos}.json. Zero-padding keeps keys
// of one resource sorted by publish time.
func updateKey(prefix, resourceID string, publishedAt time.Time) string {
	return fmt.Sprintf("%s%s/%020d.json", prefix, resourceID,
		publishedAt.UnixNano())
}

// parseKey is the inverse of updateKey. It reports false for foreign
// objects in the bucket.
func parseKey(prefix, key string) (string, time.Time, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", time.Time{}, false
	}

	resourceID, name, ok := strings.Cut(rest, "/")
	if !ok || resourceID == "" {
		return "", time.Time{}, false
	}

	name, ok = strings.CutSuffix(name, ".json")
	if !ok || strings.Contains(name, "/") {
		return "", time.Time{}, false
	}

	nanos, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return resourceID, time.Unix(0, nanos), true
}
