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

// AcquireLease atomically claims resource for holder until expiresAt. The
// insert-or-conditional-update is the only correctness primitive: a live
// foreign lease makes the conflict clause a no-op and the call reports
// false. An expired lease is reclaimable by anyone.
func (s *Storage) AcquireLease(ctx context.Context, resource, holder string,
	now, expiresAt time.Time,
) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO leases (resource, holder, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (resource)
DO UPDATE SET holder = $2, expires_at = $3
 WHERE leases.expires_at <= $4 OR leases.holder = $2`,
		resource, holder, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("storage: acquire lease %q: %w", resource, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease drops the lease on resource if holder still owns it. A stale
// release, after the lease expired and was reclaimed, is a no-op.
func (s *Storage) ReleaseLease(ctx context.Context, resource, holder string,
) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM leases WHERE resource = $1 AND holder = $2`,
		resource, holder)
	if err != nil {
		return fmt.Errorf("storage: release lease %q: %w", resource, err)
	}
	return nil
}

// RenewLease extends a still-valid lease owned by holder.
func (s *Storage) RenewLease(ctx context.Context, resource, holder string,
	now, expiresAt time.Time,
) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE leases SET expires_at = $3
 WHERE resource = $1 AND holder = $2 AND expires_at > $4`,
		resource, holder, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("storage: renew lease %q: %w", resource, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LeaseHolder returns who holds a live lease on resource, or "" if nobody
// does.
func (s *Storage) LeaseHolder(ctx context.Context, resource string,
	now time.Time,
) (string, error) {
	rows, _ := s.db.Query(ctx,
		`SELECT holder FROM leases WHERE resource = $1 AND expires_at > $2`,
		resource, now)

	holder, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[string])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("storage: lease holder %q: %w", resource, err)
	}
	return holder, nil
}
