// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package worker // import "newshub.app/internal/worker"

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"newshub.app/internal/cache"
	"newshub.app/internal/dedup"
	"newshub.app/internal/fetcher"
	"newshub.app/internal/lease"
	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
	"newshub.app/internal/parser"
	"newshub.app/internal/syncer"
)

// Cache namespaces written by the runner. Articles hold the merged fetch
// results per source; status holds the per-source fetch metadata.
const (
	NamespaceArticles = "articles"
	NamespaceStatus   = "status"
)

// statusTTL keeps fetch metadata around long past the schedule interval so
// operators can inspect sources that stopped refreshing.
const statusTTL = 30 * 24 * time.Hour

// maxCachedArticles bounds the merged article list kept per source.
const maxCachedArticles = 200

// LeaseResource returns the lock resource name guarding fetches of one
// source. Both hosts must derive the same name from the same source id.
func LeaseResource(sourceID string) string { return "fetch:" + sourceID }

// Runner executes a single fetch task: lease, fetch, parse, dedup, cache
// and optionally publish to the other host.
type Runner struct {
	cache     *cache.Cache
	locker    *lease.Locker
	deduper   *dedup.Deduper
	selector  *fetcher.Selector
	publisher *syncer.Publisher
	clock     clockwork.Clock

	leaseTTL     time.Duration
	fetchTimeout time.Duration
	maxAttempts  int
}

// NewRunner wires the task pipeline. publisher may be nil when distributed
// sync is disabled.
func NewRunner(cache *cache.Cache, locker *lease.Locker,
	deduper *dedup.Deduper, selector *fetcher.Selector,
	publisher *syncer.Publisher, clock clockwork.Clock,
	leaseTTL, fetchTimeout time.Duration, maxAttempts int,
) *Runner {
	return &Runner{
		cache:        cache,
		locker:       locker,
		deduper:      deduper,
		selector:     selector,
		publisher:    publisher,
		clock:        clock,
		leaseTTL:     leaseTTL,
		fetchTimeout: fetchTimeout,
		maxAttempts:  maxAttempts,
	}
}

// Process runs the task to completion and records the outcome in the task
// itself and in the status cache. The lease is released unconditionally,
// whatever happened in between.
func (self *Runner) Process(ctx context.Context, task *model.FetchTask) {
	source := &task.Source
	log := logging.FromContext(ctx).With(slog.String("source_id", source.ID))
	ctx = logging.WithLogger(ctx, log)

	resource := LeaseResource(source.ID)
	acquired, err := self.locker.Acquire(ctx, resource, self.leaseTTL)
	if err != nil {
		task.State, task.LastErr = model.TaskFailed, err
		log.Error("worker: lease acquire failed", slog.Any("error", err))
		self.recordStatus(ctx, task, 0)
		return
	} else if !acquired {
		task.State = model.TaskSkippedLocked
		log.Info("worker: source locked by another host")
		return
	}

	defer func() {
		if err := self.locker.Release(ctx, resource); err != nil {
			log.Warn("worker: lease release failed", slog.Any("error", err))
		}
	}()

	startTime := self.clock.Now()
	articles, err := self.refresh(ctx, task)

	status := "success"
	if err != nil {
		status = fetcher.ErrKind(err)
		task.State, task.LastErr = model.TaskFailed, err
		log.Warn("worker: refresh failed", slog.String("kind", status),
			slog.Int("attempts", task.Attempts), slog.Any("error", err))
	} else {
		task.State = model.TaskSucceeded
		log.Info("worker: refreshed source",
			slog.Int("new_articles", len(articles)),
			slog.Duration("elapsed", self.clock.Since(startTime)))
	}
	metric.FetchDuration.WithLabelValues(status).
		Observe(self.clock.Since(startTime).Seconds())

	self.recordStatus(ctx, task, len(articles))
}

func (self *Runner) refresh(ctx context.Context, task *model.FetchTask,
) (model.Articles, error) {
	result, err := self.fetch(ctx, task)
	if err != nil {
		return nil, err
	}

	articles, err := parser.Parse(result.Body, &task.Source)
	if err != nil {
		return nil, err
	}

	fresh, err := self.deduper.Filter(ctx, task.Source.ID, articles)
	if err != nil {
		return nil, err
	}

	if err := self.storeArticles(ctx, &task.Source, fresh); err != nil {
		return nil, err
	}
	self.publish(ctx, &task.Source, fresh)
	return fresh, nil
}

// fetch retrieves the raw content, retrying transient failures with
// exponential backoff. Timeouts, blocks and permanent failures abort
// immediately; the next scheduled cycle is their retry.
func (self *Runner) fetch(ctx context.Context, task *model.FetchTask,
) (*fetcher.Result, error) {
	strategy := self.selector.ForSource(&task.Source)

	retries := uint64(0)
	if self.maxAttempts > 1 {
		retries = uint64(self.maxAttempts - 1)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)

	var result *fetcher.Result
	err := backoff.Retry(func() error {
		task.Attempts++
		fetchCtx, cancel := context.WithTimeout(ctx, self.fetchTimeout)
		defer cancel()

		r, err := strategy.Fetch(fetchCtx, &task.Source)
		if err != nil {
			if fetcher.ErrKind(err) == fetcher.KindTransient {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// storeArticles merges fresh articles in front of the cached ones and
// writes the result back under the source's key. The TTL spans two schedule
// intervals so one missed cycle never empties the cache.
func (self *Runner) storeArticles(ctx context.Context,
	source *model.FeedSource, fresh model.Articles,
) error {
	articles := fresh
	if data, err := self.cache.Get(ctx, NamespaceArticles, source.ID); err == nil {
		var cached model.Articles
		if err := json.Unmarshal(data, &cached); err == nil {
			articles = append(fresh, cached...)
		}
	}
	if len(articles) > maxCachedArticles {
		articles = articles[:maxCachedArticles]
	}

	data, err := json.Marshal(articles)
	if err != nil {
		return err
	}
	return self.cache.Set(ctx, NamespaceArticles, source.ID, data,
		2*source.ScheduleEvery())
}

// publish pushes the fresh articles to the other host. Sync failures never
// fail the task: the fetch already succeeded locally.
func (self *Runner) publish(ctx context.Context, source *model.FeedSource,
	fresh model.Articles,
) {
	if self.publisher == nil || len(fresh) == 0 {
		return
	}

	payload, err := json.Marshal(fresh)
	if err == nil {
		err = self.publisher.Publish(ctx, source.ID, payload)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("worker: publish failed",
			slog.Any("error", err))
	}
}

func (self *Runner) recordStatus(ctx context.Context, task *model.FetchTask,
	count int,
) {
	status := &model.SourceStatus{
		LastFetchAt:  self.clock.Now(),
		LastStatus:   task.State,
		ArticleCount: count,
	}
	if task.LastErr != nil {
		status.LastError = task.LastErr.Error()
	}

	data, err := json.Marshal(status)
	if err == nil {
		err = self.cache.Set(ctx, NamespaceStatus, task.Source.ID, data,
			statusTTL)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("worker: failed recording status",
			slog.Any("error", err))
	}
}
