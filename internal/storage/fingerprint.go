// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package storage // import "newshub.app/internal/storage"

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// KnownFingerprints returns the subset of hashes already recorded under
// scope since the given time.
func (s *Storage) KnownFingerprints(ctx context.Context, scope string,
	hashes []string, since time.Time,
) (map[string]struct{}, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	rows, _ := s.db.Query(ctx, `
SELECT hash FROM fingerprints
 WHERE scope = $1 AND hash = ANY($2) AND first_seen_at >= $3`,
		scope, hashes, since)

	known, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("storage: known fingerprints: %w", err)
	}

	m := make(map[string]struct{}, len(known))
	for _, h := range known {
		m[h] = struct{}{}
	}
	return m, nil
}

// RememberFingerprints records sightings. An existing row has its
// first_seen_at moved forward, so an article re-admitted after the retention
// window starts a fresh window instead of being re-admitted every cycle.
func (s *Storage) RememberFingerprints(ctx context.Context, scope string,
	hashes []string, now time.Time,
) error {
	if len(hashes) == 0 {
		return nil
	}

	batch := new(pgx.Batch)
	for _, h := range hashes {
		batch.Queue(`
INSERT INTO fingerprints (scope, hash, first_seen_at)
VALUES ($1, $2, $3)
ON CONFLICT (scope, hash) DO UPDATE
   SET first_seen_at = EXCLUDED.first_seen_at`, scope, h, now)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: remember fingerprints: %w", err)
	}
	return nil
}

// PruneFingerprints drops history older than the retention window.
func (s *Storage) PruneFingerprints(ctx context.Context, olderThan time.Time,
) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM fingerprints WHERE first_seen_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("storage: prune fingerprints: %w", err)
	}
	return tag.RowsAffected(), nil
}
