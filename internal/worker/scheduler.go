// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package worker // import "newshub.app/internal/worker"

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"newshub.app/internal/cache"
	"newshub.app/internal/logging"
	"newshub.app/internal/model"
)

// Scheduler triggers a fetch for every source whose refresh interval has
// elapsed since its last recorded fetch. The status cache is the only
// schedule state, so both hosts see the other's fetches too.
type Scheduler struct {
	pool      *Pool
	cache     *cache.Cache
	sources   []model.FeedSource
	frequency time.Duration
	clock     clockwork.Clock
}

func NewScheduler(pool *Pool, cache *cache.Cache,
	sources []model.FeedSource, frequency time.Duration,
	clock clockwork.Clock,
) *Scheduler {
	return &Scheduler{
		pool:      pool,
		cache:     cache,
		sources:   sources,
		frequency: frequency,
		clock:     clock,
	}
}

// Run evaluates the schedule once at startup and then on every tick until
// ctx is canceled.
func (self *Scheduler) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("worker: scheduler started",
		slog.Int("sources", len(self.sources)),
		slog.Duration("frequency", self.frequency))

	ticker := self.clock.NewTicker(self.frequency)
	defer ticker.Stop()

	self.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker: scheduler stopped")
			return nil
		case <-ticker.Chan():
			self.Tick(ctx)
		}
	}
}

// Tick triggers every due source once.
func (self *Scheduler) Tick(ctx context.Context) {
	log := logging.FromContext(ctx)
	now := self.clock.Now()

	for i := range self.sources {
		source := &self.sources[i]
		if !self.due(ctx, source, now) {
			continue
		}

		err := self.pool.Trigger(ctx, source)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyQueued):
		case errors.Is(err, ErrQueueFull):
			log.Warn("worker: queue full, source deferred",
				slog.String("source_id", source.ID))
		default:
			log.Error("worker: trigger failed",
				slog.String("source_id", source.ID), slog.Any("error", err))
		}
	}
}

// due reports whether the source should be fetched now. A source without a
// readable status was never fetched on either host and is always due.
func (self *Scheduler) due(ctx context.Context, source *model.FeedSource,
	now time.Time,
) bool {
	data, err := self.cache.Get(ctx, NamespaceStatus, source.ID)
	if err != nil {
		return true
	}

	var status model.SourceStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return true
	}
	return now.Sub(status.LastFetchAt) >= source.ScheduleEvery()
}
