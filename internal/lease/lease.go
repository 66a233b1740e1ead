// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package lease // import "newshub.app/internal/lease"

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
)

// Store is the durable table holding lease records. Implemented by
// *storage.Storage; tests substitute an in-memory store.
type Store interface {
	AcquireLease(ctx context.Context, resource, holder string,
		now, expiresAt time.Time) (bool, error)
	ReleaseLease(ctx context.Context, resource, holder string) error
	RenewLease(ctx context.Context, resource, holder string,
		now, expiresAt time.Time) (bool, error)
	LeaseHolder(ctx context.Context, resource string, now time.Time,
	) (string, error)
}

// NewLocker returns a Locker with a fresh holder identity. Each process
// instance gets its own identity, so leases crash-expire rather than being
// inherited by a restarted process.
func NewLocker(store Store, clock clockwork.Clock) *Locker {
	return &Locker{
		store:  store,
		clock:  clock,
		holder: uuid.NewString(),
	}
}

// Locker is the lease-based mutual exclusion primitive. At most one
// non-expired lease exists per resource; the durable store's atomic
// insert-if-absent is the only correctness mechanism, there is no
// application mutex on top.
type Locker struct {
	store  Store
	clock  clockwork.Clock
	holder string
}

func (self *Locker) Holder() string { return self.holder }

// Acquire claims resource for ttl. A false return is not an error: somebody
// else holds a live lease and is already doing the work.
func (self *Locker) Acquire(ctx context.Context, resource string,
	ttl time.Duration,
) (bool, error) {
	now := self.clock.Now()
	ok, err := self.store.AcquireLease(ctx, resource, self.holder, now,
		now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("lease: acquire %q: %w", resource, err)
	}

	if !ok {
		metric.LeaseConflicts.Inc()
		logging.FromContext(ctx).Debug("lease: already held",
			slog.String("resource", resource))
	}
	return ok, nil
}

// Release drops our lease on resource. Releasing a lease we no longer hold,
// because it expired and was reclaimed, is a no-op: a stale release must
// never evict a newer holder.
func (self *Locker) Release(ctx context.Context, resource string) error {
	if err := self.store.ReleaseLease(ctx, resource, self.holder); err != nil {
		return fmt.Errorf("lease: release %q: %w", resource, err)
	}
	return nil
}

// Renew extends a lease we still hold. Returns false if the lease expired in
// the meantime.
func (self *Locker) Renew(ctx context.Context, resource string,
	ttl time.Duration,
) (bool, error) {
	now := self.clock.Now()
	ok, err := self.store.RenewLease(ctx, resource, self.holder, now,
		now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("lease: renew %q: %w", resource, err)
	}
	return ok, nil
}

// HolderOf reports who holds a live lease on resource, or "" if nobody
// does. Consumed by operational status views.
func (self *Locker) HolderOf(ctx context.Context, resource string,
) (string, error) {
	holder, err := self.store.LeaseHolder(ctx, resource, self.clock.Now())
	if err != nil {
		return "", fmt.Errorf("lease: holder of %q: %w", resource, err)
	}
	return holder, nil
}
