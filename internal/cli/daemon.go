// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"newshub.app/internal/cache"
	"newshub.app/internal/config"
	"newshub.app/internal/dedup"
	"newshub.app/internal/fetcher"
	"newshub.app/internal/lease"
	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
	"newshub.app/internal/storage"
	"newshub.app/internal/syncer"
	"newshub.app/internal/version"
	"newshub.app/internal/worker"
)

func NewDaemon() *Daemon { return &Daemon{} }

type Daemon struct {
	store         *storage.Storage
	rt            *runtime
	g             *errgroup.Group
	pool          *worker.Pool
	metricsServer *http.Server
}

func (self *Daemon) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, os.Interrupt)
	defer cancel()

	slog.Info("starting daemon", slog.String("version", version.Version))
	defer self.close(ctx)

	if err := self.configure(ctx); err != nil {
		return err
	}

	if err := self.start(ctx); err != nil {
		return err
	}
	return self.wait(ctx)
}

func (self *Daemon) close(ctx context.Context) {
	if self.store != nil {
		self.store.Close(ctx)
	}
}

func (self *Daemon) configure(ctx context.Context) error {
	store, err := makeStorage(ctx)
	if err != nil {
		return err
	}
	self.store = store

	if config.Opts.RunMigrations() {
		if err := self.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := self.store.SchemaUpToDate(ctx); err != nil {
		return err
	}

	rt, err := newRuntime(ctx, self.store)
	if err != nil {
		return err
	}
	self.rt = rt

	if config.Opts.HasMetricsCollector() {
		metric.RegisterMetrics()
	}
	return nil
}

func (self *Daemon) start(ctx context.Context) error {
	self.g, ctx = errgroup.WithContext(ctx)
	rt := self.rt

	runner := worker.NewRunner(rt.cache, rt.locker, rt.deduper, rt.selector,
		rt.publisher, rt.clock,
		config.Opts.LeaseTTL(),
		config.Opts.FetchTimeout(),
		config.Opts.FetchMaxAttempts())
	self.pool = worker.NewPool(runner,
		config.Opts.WorkerPoolSize(),
		config.Opts.QueueCapacity(),
		rt.clock)
	self.g.Go(func() error { return self.pool.Run(ctx) })

	scheduler := worker.NewScheduler(self.pool, rt.cache, rt.sources,
		config.Opts.PollingFrequency(), rt.clock)
	self.g.Go(func() error { return scheduler.Run(ctx) })

	self.g.Go(func() error { return self.runCleanup(ctx) })

	if rt.watcher != nil {
		self.g.Go(func() error { return rt.watcher.Run(ctx) })
	}
	if rt.trigger != nil {
		self.g.Go(func() error { return rt.trigger.Run(ctx) })
	}

	if config.Opts.HasMetricsCollector() {
		self.startMetricsServer(ctx)
	}
	return nil
}

// runCleanup periodically prunes expired cache entries, old fingerprints
// and, when sync is enabled, expired sync updates.
func (self *Daemon) runCleanup(ctx context.Context) error {
	log := logging.FromContext(ctx)
	ticker := self.rt.clock.NewTicker(config.Opts.CleanupFrequency())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			now := self.rt.clock.Now()
			if _, err := self.store.CacheEvictExpired(ctx, now); err != nil {
				log.Warn("cleanup: cache eviction failed",
					slog.Any("error", err))
			}
			if _, err := self.rt.deduper.Prune(ctx); err != nil {
				log.Warn("cleanup: fingerprint pruning failed",
					slog.Any("error", err))
			}
			if self.rt.bucket != nil {
				_, err := syncer.Cleanup(ctx, self.rt.bucket,
					config.Opts.SyncPrefix(), config.Opts.SyncMaxAge(),
					self.rt.clock)
				if err != nil {
					log.Warn("cleanup: sync cleanup failed",
						slog.Any("error", err))
				}
			}
		}
	}
}

func (self *Daemon) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metric.Handler())

	self.metricsServer = &http.Server{
		Addr:         config.Opts.MetricsListenAddr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	self.g.Go(func() error {
		slog.Info("metrics listener started",
			slog.String("addr", self.metricsServer.Addr))
		err := self.metricsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})
}

func (self *Daemon) wait(ctx context.Context) error {
	<-ctx.Done()
	slog.Info("shutting down")

	if self.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		_ = self.metricsServer.Shutdown(shutdownCtx)
	}
	return self.g.Wait()
}

// runtime bundles the services built from configuration. The same wiring
// backs the daemon and the one-shot refresh command.
type runtime struct {
	clock    clockwork.Clock
	sources  []model.FeedSource
	cache    *cache.Cache
	locker   *lease.Locker
	deduper  *dedup.Deduper
	selector *fetcher.Selector

	bucket    syncer.Bucket
	publisher *syncer.Publisher
	watcher   *syncer.Watcher
	trigger   *syncer.DirTrigger
}

func newRuntime(ctx context.Context, store *storage.Storage,
) (*runtime, error) {
	sources, err := config.LoadSources(config.Opts.SourcesFile())
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	rt := &runtime{
		clock:   clock,
		sources: sources,
		cache: cache.New(store, config.Opts.LocalCacheSize(),
			config.Opts.LocalCacheTTL(), clock),
		locker: lease.NewLocker(store, clock),
		deduper: dedup.New(store, config.Opts.DedupRetention(),
			config.Opts.DedupScopeGlobal(), clock),
		selector: fetcher.NewSelector(fetcher.Options{
			UserAgent:       config.Opts.HTTPClientUserAgent(),
			ProxyURL:        config.Opts.HTTPClientProxyURL(),
			AnonymizedProxy: config.Opts.AnonymizedProxyURL(),
			BrowserEndpoint: config.Opts.BrowserEndpoint(),
			HostRate:        config.Opts.HTTPClientHostRate(),
		}),
	}

	if !config.Opts.SyncEnabled() {
		return rt, nil
	}

	bucket, err := newBucket(ctx)
	if err != nil {
		return nil, err
	}
	rt.bucket = bucket
	rt.publisher = syncer.NewPublisher(bucket, config.Opts.SyncPrefix(),
		clock)

	rt.watcher = syncer.NewWatcher(bucket, config.Opts.SyncPrefix(),
		config.Opts.SyncPollInterval(), clock)
	rt.watcher.IgnorePublisher(rt.publisher.ID())
	rt.watcher.RegisterCallback(rt.applyRemoteUpdate)

	if dir := config.Opts.SyncWatchDir(); dir != "" {
		rt.trigger = syncer.NewDirTrigger(dir, rt.publisher)
	}
	return rt, nil
}

func newBucket(ctx context.Context) (syncer.Bucket, error) {
	switch config.Opts.SyncBackend() {
	case "fs":
		return syncer.NewFSBucket(afero.NewOsFs(),
			config.Opts.SyncBucketDir()), nil
	}
	return syncer.NewS3Bucket(ctx, config.Opts.SyncBucket())
}

// applyRemoteUpdate folds articles fetched by the other host into the local
// cache. The durable write refreshes the local tier too, so readers on this
// host see the remote fetch without waiting for the local TTL.
func (self *runtime) applyRemoteUpdate(ctx context.Context,
	update *model.SyncUpdate,
) {
	log := logging.FromContext(ctx).With(
		slog.String("resource_id", update.ResourceID))

	var articles model.Articles
	if err := json.Unmarshal(update.Payload, &articles); err != nil {
		log.Warn("sync: malformed remote payload", slog.Any("error", err))
		return
	}

	source := self.sourceByID(update.ResourceID)
	if source == nil {
		log.Debug("sync: update for unknown source")
		return
	}

	fresh, err := self.deduper.Filter(ctx, source.ID, articles)
	if err != nil {
		log.Warn("sync: dedup failed", slog.Any("error", err))
		return
	}
	if len(fresh) == 0 {
		return
	}

	merged := fresh
	if data, err := self.cache.Get(ctx, worker.NamespaceArticles,
		source.ID); err == nil {
		var cached model.Articles
		if err := json.Unmarshal(data, &cached); err == nil {
			merged = append(fresh, cached...)
		}
	}

	data, err := json.Marshal(merged)
	if err == nil {
		err = self.cache.Set(ctx, worker.NamespaceArticles, source.ID, data,
			2*source.ScheduleEvery())
	}
	if err != nil {
		log.Warn("sync: failed applying remote update",
			slog.Any("error", err))
		return
	}

	// The other host fetched this source moments ago, so the locally
	// cached fetch status is out of date. Drop it and let the scheduler
	// read the fresh durable one.
	self.cache.Invalidate(worker.NamespaceStatus, source.ID)
	log.Info("sync: applied remote update", slog.Int("articles", len(fresh)))
}

func (self *runtime) sourceByID(id string) *model.FeedSource {
	for i := range self.sources {
		if self.sources[i].ID == id {
			return &self.sources[i]
		}
	}
	return nil
}
