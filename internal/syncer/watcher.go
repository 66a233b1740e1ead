// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
)

// Callback receives a remote update that is newer than anything applied for
// its resource so far. Delivery is at-least-once: a callback may see the
// same update again after a failed poll.
type Callback func(ctx context.Context, update *model.SyncUpdate)

// Watcher polls the bucket and applies remote updates in publish order.
// Updates older than the newest applied one for the same resource are
// discarded, so replays and slow hosts can never move state backwards.
type Watcher struct {
	bucket   Bucket
	prefix   string
	interval time.Duration
	clock    clockwork.Clock

	ignored map[string]struct{}

	mu          sync.Mutex
	callbacks   []Callback
	lastApplied map[string]time.Time
}

func NewWatcher(bucket Bucket, prefix string, interval time.Duration,
	clock clockwork.Clock,
) *Watcher {
	return &Watcher{
		bucket:      bucket,
		prefix:      prefix,
		interval:    interval,
		clock:       clock,
		ignored:     map[string]struct{}{},
		lastApplied: map[string]time.Time{},
	}
}

// IgnorePublisher drops updates published under id, typically this host's
// own publisher. Not safe to call after Run started.
func (self *Watcher) IgnorePublisher(id string) {
	self.ignored[id] = struct{}{}
}

func (self *Watcher) RegisterCallback(fn Callback) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.callbacks = append(self.callbacks, fn)
}

// Run polls the bucket until ctx is canceled. Poll errors are logged and
// retried on the next tick.
func (self *Watcher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("syncer: watching for remote updates",
		slog.String("prefix", self.prefix),
		slog.Duration("interval", self.interval))

	ticker := self.clock.NewTicker(self.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := self.Poll(ctx); err != nil {
				log.Warn("syncer: poll failed", slog.Any("error", err))
			}
		}
	}
}

// Poll performs one pass over the bucket and delivers pending updates.
func (self *Watcher) Poll(ctx context.Context) error {
	keys, err := self.bucket.List(ctx, self.prefix)
	if err != nil {
		return err
	}

	type pending struct {
		key         string
		resourceID  string
		publishedAt time.Time
	}

	var updates []pending
	for _, key := range keys {
		resourceID, publishedAt, ok := parseKey(self.prefix, key)
		if !ok {
			continue
		}
		if !publishedAt.After(self.appliedAt(resourceID)) {
			continue
		}
		updates = append(updates, pending{key, resourceID, publishedAt})
	}

	slices.SortFunc(updates, func(a, b pending) int {
		if c := strings.Compare(a.resourceID, b.resourceID); c != 0 {
			return c
		}
		return a.publishedAt.Compare(b.publishedAt)
	})

	log := logging.FromContext(ctx)
	for _, p := range updates {
		data, err := self.bucket.Get(ctx, p.key)
		if err != nil {
			log.Warn("syncer: failed reading update",
				slog.String("key", p.key), slog.Any("error", err))
			continue
		}

		var update model.SyncUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			log.Warn("syncer: skipping malformed update",
				slog.String("key", p.key), slog.Any("error", err))
			self.markApplied(p.resourceID, p.publishedAt)
			continue
		}

		if _, ok := self.ignored[update.PublisherID]; ok {
			self.markApplied(p.resourceID, p.publishedAt)
			continue
		}

		self.deliver(ctx, &update)
		self.markApplied(p.resourceID, p.publishedAt)
		metric.SyncApplied.Inc()
	}
	return nil
}

func (self *Watcher) deliver(ctx context.Context, update *model.SyncUpdate) {
	self.mu.Lock()
	callbacks := slices.Clone(self.callbacks)
	self.mu.Unlock()

	for _, fn := range callbacks {
		fn(ctx, update)
	}
}

func (self *Watcher) appliedAt(resourceID string) time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.lastApplied[resourceID]
}

func (self *Watcher) markApplied(resourceID string, at time.Time) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if at.After(self.lastApplied[resourceID]) {
		self.lastApplied[resourceID] = at
	}
}
