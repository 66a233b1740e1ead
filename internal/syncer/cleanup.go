// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"newshub.app/internal/logging"
)

// Cleanup deletes updates published before the retention window. Age comes
// from the publish time embedded in the key, never from bucket metadata.
// Objects newer than maxAge are left untouched even when already applied,
// so a host that was down can still catch up from them.
func Cleanup(ctx context.Context, bucket Bucket, prefix string,
	maxAge time.Duration, clock clockwork.Clock,
) (int, error) {
	keys, err := bucket.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	log := logging.FromContext(ctx)
	cutoff := clock.Now().Add(-maxAge)

	var removed int
	for _, key := range keys {
		_, publishedAt, ok := parseKey(prefix, key)
		if !ok || !publishedAt.Before(cutoff) {
			continue
		}
		if err := bucket.Delete(ctx, key); err != nil {
			log.Warn("syncer: failed deleting expired update",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info("syncer: removed expired updates",
			slog.Int("count", removed))
	}
	return removed, nil
}
