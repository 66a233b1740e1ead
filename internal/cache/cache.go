// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cache // import "newshub.app/internal/cache"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
)

// ErrMiss is returned by Get when neither tier holds a live entry. It's not
// an error condition, callers branch on it.
var ErrMiss = errors.New("cache: miss")

// Tier2 is the durable, cross-process store backing the cache. Implemented
// by *storage.Storage; tests substitute an in-memory store.
type Tier2 interface {
	CacheGet(ctx context.Context, namespace, key string, now time.Time,
	) ([]byte, time.Time, bool, error)
	CacheSet(ctx context.Context, namespace, key string, value []byte,
		now time.Time, ttl time.Duration) error
	CacheDelete(ctx context.Context, namespace, key string) error
}

type localEntry struct {
	value      []byte
	freshUntil time.Time // trusted without a durable read until here
	expiresAt  time.Time // durable TTL, never served past this
}

func (self localEntry) live(now time.Time) bool {
	return now.Before(self.expiresAt)
}

// New returns a two-tier Cache: a bounded process-local tier in front of the
// durable store. localTTL is the staleness bound of the local tier.
func New(store Tier2, localSize int, localTTL time.Duration,
	clock clockwork.Clock,
) *Cache {
	return &Cache{
		store:    store,
		local:    lru.NewLRU[string, localEntry](localSize, nil, localTTL),
		localTTL: localTTL,
		clock:    clock,
	}
}

// Cache is the two-tier key/value store. The local tier is a pure
// optimization and never the source of truth for cross-process data.
type Cache struct {
	store Tier2
	local *lru.LRU[string, localEntry]
	sg    singleflight.Group

	localTTL time.Duration
	clock    clockwork.Clock
}

func cacheKey(namespace, key string) string { return namespace + "\x00" + key }

// Get returns the value stored under (namespace, key), or ErrMiss. A local
// hit is trusted only up to the local TTL; on local miss or expiry the
// durable tier is read and the local tier repopulated. If the durable tier
// is unreachable the last known local value is served instead, unless its
// durable TTL has elapsed.
func (self *Cache) Get(ctx context.Context, namespace, key string,
) ([]byte, error) {
	k := cacheKey(namespace, key)
	now := self.clock.Now()

	if e, ok := self.local.Get(k); ok && now.Before(e.freshUntil) {
		metric.CacheHits.WithLabelValues("local").Inc()
		return e.value, nil
	}

	v, err, _ := self.sg.Do(k, func() (any, error) {
		value, expiresAt, ok, err := self.store.CacheGet(ctx, namespace, key,
			now)
		if err != nil {
			return nil, err
		} else if !ok {
			return nil, ErrMiss
		}

		self.local.Add(k, localEntry{
			value:      value,
			freshUntil: earliest(now.Add(self.localTTL), expiresAt),
			expiresAt:  expiresAt,
		})
		return value, nil
	})
	if err == nil {
		metric.CacheHits.WithLabelValues("durable").Inc()
		return v.([]byte), nil
	}

	if errors.Is(err, ErrMiss) {
		metric.CacheMisses.Inc()
		self.local.Remove(k)
		return nil, ErrMiss
	}

	// Failed-safe stale read: the durable tier is unreachable, but the local
	// tier may still hold the last known value. The entry's durable TTL
	// still binds, an expired value is never served.
	if e, ok := self.local.Get(k); ok && e.live(now) {
		logging.FromContext(ctx).Warn("cache: serving stale local value",
			slog.String("namespace", namespace), slog.String("key", key),
			slog.Any("error", err))
		metric.CacheStaleReads.Inc()
		return e.value, nil
	}
	return nil, fmt.Errorf("cache: read %s/%s: %w", namespace, key, err)
}

// Set writes the durable tier first, then updates the local tier, so readers
// in this process never see a stale local value after a fresh durable write.
// If the durable write fails the local tier is left untouched and the caller
// must treat the operation as not durable.
func (self *Cache) Set(ctx context.Context, namespace, key string,
	value []byte, ttl time.Duration,
) error {
	now := self.clock.Now()
	err := self.store.CacheSet(ctx, namespace, key, value, now, ttl)
	if err != nil {
		return fmt.Errorf("cache: write %s/%s: %w", namespace, key, err)
	}

	self.local.Add(cacheKey(namespace, key), localEntry{
		value:      value,
		freshUntil: earliest(now.Add(self.localTTL), now.Add(ttl)),
		expiresAt:  now.Add(ttl),
	})
	return nil
}

// Delete removes the entry from both tiers, durable first.
func (self *Cache) Delete(ctx context.Context, namespace, key string) error {
	if err := self.store.CacheDelete(ctx, namespace, key); err != nil {
		return fmt.Errorf("cache: delete %s/%s: %w", namespace, key, err)
	}
	self.local.Remove(cacheKey(namespace, key))
	return nil
}

// Invalidate drops a local entry without touching the durable tier. Used for
// derived values that depend on freshly written data.
func (self *Cache) Invalidate(namespace, key string) {
	self.local.Remove(cacheKey(namespace, key))
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
