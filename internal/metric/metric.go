// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metric // import "newshub.app/internal/metric"

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus Metrics.
var (
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newshub",
			Name:      "fetch_duration",
			Help:      "Processing time of one feed source refresh",
			Buckets:   prometheus.LinearBuckets(1, 2, 15),
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "cache_hits_total",
			Help:      "Cache hits per tier",
		},
		[]string{"tier"},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "cache_misses_total",
			Help:      "Cache misses across both tiers",
		},
	)

	CacheStaleReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "cache_stale_reads_total",
			Help:      "Failed-safe stale reads served while the durable tier was unreachable",
		},
	)

	LeaseConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "lease_conflicts_total",
			Help:      "Lease acquisitions skipped because another holder was active",
		},
	)

	DedupDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "dedup_dropped_total",
			Help:      "Articles dropped as duplicates",
		},
	)

	QueueRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "queue_rejected_total",
			Help:      "On-demand triggers rejected because the task queue was full",
		},
	)

	SyncPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "sync_published_total",
			Help:      "Updates published to shared object storage",
		},
	)

	SyncApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newshub",
			Name:      "sync_applied_total",
			Help:      "Remote updates applied by the sync watcher",
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheStaleReads)
	prometheus.MustRegister(LeaseConflicts)
	prometheus.MustRegister(DedupDropped)
	prometheus.MustRegister(QueueRejected)
	prometheus.MustRegister(SyncPublished)
	prometheus.MustRegister(SyncApplied)
}

func Handler() http.Handler { return promhttp.Handler() }
