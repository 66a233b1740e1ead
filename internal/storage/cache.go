// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package storage // import "newshub.app/internal/storage"

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type cacheRow struct {
	Value     []byte    `db:"value"`
	ExpiresAt time.Time `db:"expires_at"`
}

// CacheGet returns the value stored under (namespace, key) and its expiry
// time, if the entry hasn't expired yet. The bool reports whether a live
// entry was found.
func (s *Storage) CacheGet(ctx context.Context, namespace, key string,
	now time.Time,
) ([]byte, time.Time, bool, error) {
	rows, _ := s.db.Query(ctx, `
SELECT value, written_at + ttl AS expires_at FROM cache_entries
 WHERE namespace = $1 AND key = $2 AND written_at + ttl > $3`,
		namespace, key, now)

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[cacheRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("storage: cache get %s/%s: %w",
			namespace, key, err)
	}
	return row.Value, row.ExpiresAt, true, nil
}

// CacheSet stores value under (namespace, key), replacing any previous
// entry.
func (s *Storage) CacheSet(ctx context.Context, namespace, key string,
	value []byte, now time.Time, ttl time.Duration,
) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO cache_entries (namespace, key, value, written_at, ttl)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, key)
DO UPDATE SET value = $3, written_at = $4, ttl = $5`,
		namespace, key, value, now, ttl)
	if err != nil {
		return fmt.Errorf("storage: cache set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Storage) CacheDelete(ctx context.Context, namespace, key string,
) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`,
		namespace, key)
	if err != nil {
		return fmt.Errorf("storage: cache delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// CacheEvictExpired removes entries whose TTL has elapsed and returns how
// many were removed.
func (s *Storage) CacheEvictExpired(ctx context.Context, now time.Time,
) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM cache_entries WHERE written_at + ttl <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: cache evict expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
