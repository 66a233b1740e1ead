// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package config // import "newshub.app/internal/config"

import (
	"fmt"
	"strings"
	"time"

	"newshub.app/internal/version"
)

const defaultDatabaseURL = "user=postgres password=postgres dbname=newshub sslmode=disable"

var defaultUA = "Newshub/" + version.Version + " (https://newshub.app)"

// Options contains configuration options.
type Options struct {
	env EnvOptions
}

type EnvOptions struct {
	LogLevel  string `env:"LOG_LEVEL" validate:"required,oneof=debug info warning error"`
	LogFormat string `env:"LOG_FORMAT" validate:"required,oneof=text json"`

	DatabaseURL                string `env:"DATABASE_URL" validate:"required"`
	DatabaseMaxConns           int    `env:"DATABASE_MAX_CONNS" validate:"min=1"`
	DatabaseMinConns           int    `env:"DATABASE_MIN_CONNS" validate:"min=0"`
	DatabaseConnectionLifetime int    `env:"DATABASE_CONNECTION_LIFETIME" validate:"gt=0"`
	RunMigrations              bool   `env:"RUN_MIGRATIONS"`

	SourcesFile string `env:"SOURCES_FILE" validate:"required"`

	WorkerPoolSize   int `env:"WORKER_POOL_SIZE" validate:"min=1"`
	QueueCapacity    int `env:"QUEUE_CAPACITY" validate:"min=1"`
	PollingFrequency int `env:"POLLING_FREQUENCY" validate:"min=1"`

	FetchTimeout        int     `env:"FETCH_TIMEOUT" validate:"min=1"`
	FetchMaxAttempts    int     `env:"FETCH_MAX_ATTEMPTS" validate:"min=1"`
	HTTPClientUserAgent string  `env:"HTTP_CLIENT_USER_AGENT"`
	HTTPClientProxyURL  string  `env:"HTTP_CLIENT_PROXY" validate:"omitempty,url"`
	HTTPClientHostRate  float64 `env:"HTTP_CLIENT_HOST_RATE" validate:"gt=0"`
	BrowserEndpoint     string  `env:"BROWSER_ENDPOINT" validate:"omitempty,url"`
	AnonymizedProxyURL  string  `env:"ANONYMIZED_PROXY" validate:"omitempty,url"`

	LeaseTTL int `env:"LEASE_TTL" validate:"min=1"`

	LocalCacheSize int `env:"LOCAL_CACHE_SIZE" validate:"min=1"`
	LocalCacheTTL  int `env:"LOCAL_CACHE_TTL" validate:"min=1"`

	DedupRetentionDays int    `env:"DEDUP_RETENTION_DAYS" validate:"min=1"`
	DedupScope         string `env:"DEDUP_SCOPE" validate:"required,oneof=source global"`

	CleanupFrequencyHours int `env:"CLEANUP_FREQUENCY_HOURS" validate:"min=1"`

	SyncEnabled      bool   `env:"SYNC_ENABLED"`
	SyncBackend      string `env:"SYNC_BACKEND" validate:"required,oneof=s3 fs"`
	SyncBucket       string `env:"SYNC_BUCKET"`
	SyncBucketDir    string `env:"SYNC_BUCKET_DIR"`
	SyncPrefix       string `env:"SYNC_PREFIX"`
	SyncPollInterval int    `env:"SYNC_POLL_INTERVAL" validate:"min=1"`
	SyncMaxAgeHours  int    `env:"SYNC_MAX_AGE_HOURS" validate:"min=1"`
	SyncWatchDir     string `env:"SYNC_WATCH_DIR"`

	MetricsCollector  bool   `env:"METRICS_COLLECTOR"`
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR" validate:"omitempty,hostname_port"`
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		env: EnvOptions{
			LogLevel:  "info",
			LogFormat: "text",

			DatabaseURL:                defaultDatabaseURL,
			DatabaseMaxConns:           20,
			DatabaseMinConns:           1,
			DatabaseConnectionLifetime: 5,

			SourcesFile: "sources.yml",

			WorkerPoolSize:   16,
			QueueCapacity:    128,
			PollingFrequency: 15,

			FetchTimeout:       60,
			FetchMaxAttempts:   3,
			HTTPClientHostRate: 1,

			LeaseTTL: 300,

			LocalCacheSize: 1024,
			LocalCacheTTL:  60,

			DedupRetentionDays: 30,
			DedupScope:         "global",

			CleanupFrequencyHours: 24,

			SyncBackend:      "fs",
			SyncPollInterval: 30,
			SyncMaxAgeHours:  72,

			MetricsListenAddr: "127.0.0.1:9090",
		},
	}
}

func (o *Options) init() error {
	if err := Validator().Struct(&o.env); err != nil {
		return fmt.Errorf("config: validate options: %w", err)
	}
	return nil
}

func (o *Options) LogLevel() string  { return o.env.LogLevel }
func (o *Options) LogFormat() string { return o.env.LogFormat }

// SetLogLevel overrides the configured log level, for the --debug flag.
func (o *Options) SetLogLevel(level string) { o.env.LogLevel = level }

func (o *Options) DatabaseURL() string { return o.env.DatabaseURL }

func (o *Options) IsDefaultDatabaseURL() bool {
	return o.env.DatabaseURL == defaultDatabaseURL
}

func (o *Options) DatabaseMaxConns() int { return o.env.DatabaseMaxConns }
func (o *Options) DatabaseMinConns() int { return o.env.DatabaseMinConns }

func (o *Options) DatabaseConnectionLifetime() time.Duration {
	return time.Duration(o.env.DatabaseConnectionLifetime) * time.Minute
}

func (o *Options) RunMigrations() bool { return o.env.RunMigrations }

func (o *Options) SourcesFile() string { return o.env.SourcesFile }

func (o *Options) WorkerPoolSize() int { return o.env.WorkerPoolSize }
func (o *Options) QueueCapacity() int  { return o.env.QueueCapacity }

func (o *Options) PollingFrequency() time.Duration {
	return time.Duration(o.env.PollingFrequency) * time.Minute
}

func (o *Options) FetchTimeout() time.Duration {
	return time.Duration(o.env.FetchTimeout) * time.Second
}

func (o *Options) FetchMaxAttempts() int { return o.env.FetchMaxAttempts }

func (o *Options) HTTPClientUserAgent() string {
	if o.env.HTTPClientUserAgent == "" {
		return defaultUA
	}
	return o.env.HTTPClientUserAgent
}

func (o *Options) HTTPClientProxyURL() string  { return o.env.HTTPClientProxyURL }
func (o *Options) HTTPClientHostRate() float64 { return o.env.HTTPClientHostRate }
func (o *Options) BrowserEndpoint() string     { return o.env.BrowserEndpoint }
func (o *Options) AnonymizedProxyURL() string  { return o.env.AnonymizedProxyURL }

func (o *Options) LeaseTTL() time.Duration {
	return time.Duration(o.env.LeaseTTL) * time.Second
}

func (o *Options) LocalCacheSize() int { return o.env.LocalCacheSize }

func (o *Options) LocalCacheTTL() time.Duration {
	return time.Duration(o.env.LocalCacheTTL) * time.Second
}

func (o *Options) DedupRetention() time.Duration {
	return time.Duration(o.env.DedupRetentionDays) * 24 * time.Hour
}

func (o *Options) DedupScopeGlobal() bool { return o.env.DedupScope == "global" }

func (o *Options) CleanupFrequency() time.Duration {
	return time.Duration(o.env.CleanupFrequencyHours) * time.Hour
}

func (o *Options) SyncEnabled() bool     { return o.env.SyncEnabled }
func (o *Options) SyncBackend() string   { return o.env.SyncBackend }
func (o *Options) SyncBucket() string    { return o.env.SyncBucket }
func (o *Options) SyncBucketDir() string { return o.env.SyncBucketDir }
func (o *Options) SyncPrefix() string    { return o.env.SyncPrefix }

func (o *Options) SyncPollInterval() time.Duration {
	return time.Duration(o.env.SyncPollInterval) * time.Second
}

func (o *Options) SyncMaxAge() time.Duration {
	return time.Duration(o.env.SyncMaxAgeHours) * time.Hour
}

func (o *Options) SyncWatchDir() string { return o.env.SyncWatchDir }

func (o *Options) HasMetricsCollector() bool { return o.env.MetricsCollector }
func (o *Options) MetricsListenAddr() string { return o.env.MetricsListenAddr }

// String returns a string representation of the parsed options, one KEY:
// value pair per line, for the config-dump command.
func (o *Options) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LOG_LEVEL: %v\n", o.env.LogLevel)
	fmt.Fprintf(&b, "LOG_FORMAT: %v\n", o.env.LogFormat)
	fmt.Fprintf(&b, "DATABASE_URL: %v\n", o.env.DatabaseURL)
	fmt.Fprintf(&b, "DATABASE_MAX_CONNS: %v\n", o.env.DatabaseMaxConns)
	fmt.Fprintf(&b, "DATABASE_MIN_CONNS: %v\n", o.env.DatabaseMinConns)
	fmt.Fprintf(&b, "DATABASE_CONNECTION_LIFETIME: %v\n",
		o.env.DatabaseConnectionLifetime)
	fmt.Fprintf(&b, "RUN_MIGRATIONS: %v\n", o.env.RunMigrations)
	fmt.Fprintf(&b, "SOURCES_FILE: %v\n", o.env.SourcesFile)
	fmt.Fprintf(&b, "WORKER_POOL_SIZE: %v\n", o.env.WorkerPoolSize)
	fmt.Fprintf(&b, "QUEUE_CAPACITY: %v\n", o.env.QueueCapacity)
	fmt.Fprintf(&b, "POLLING_FREQUENCY: %v\n", o.env.PollingFrequency)
	fmt.Fprintf(&b, "FETCH_TIMEOUT: %v\n", o.env.FetchTimeout)
	fmt.Fprintf(&b, "FETCH_MAX_ATTEMPTS: %v\n", o.env.FetchMaxAttempts)
	fmt.Fprintf(&b, "LEASE_TTL: %v\n", o.env.LeaseTTL)
	fmt.Fprintf(&b, "LOCAL_CACHE_SIZE: %v\n", o.env.LocalCacheSize)
	fmt.Fprintf(&b, "LOCAL_CACHE_TTL: %v\n", o.env.LocalCacheTTL)
	fmt.Fprintf(&b, "DEDUP_RETENTION_DAYS: %v\n", o.env.DedupRetentionDays)
	fmt.Fprintf(&b, "DEDUP_SCOPE: %v\n", o.env.DedupScope)
	fmt.Fprintf(&b, "CLEANUP_FREQUENCY_HOURS: %v\n", o.env.CleanupFrequencyHours)
	fmt.Fprintf(&b, "SYNC_ENABLED: %v\n", o.env.SyncEnabled)
	fmt.Fprintf(&b, "SYNC_BACKEND: %v\n", o.env.SyncBackend)
	fmt.Fprintf(&b, "SYNC_BUCKET: %v\n", o.env.SyncBucket)
	fmt.Fprintf(&b, "SYNC_BUCKET_DIR: %v\n", o.env.SyncBucketDir)
	fmt.Fprintf(&b, "SYNC_PREFIX: %v\n", o.env.SyncPrefix)
	fmt.Fprintf(&b, "SYNC_POLL_INTERVAL: %v\n", o.env.SyncPollInterval)
	fmt.Fprintf(&b, "SYNC_MAX_AGE_HOURS: %v\n", o.env.SyncMaxAgeHours)
	fmt.Fprintf(&b, "SYNC_WATCH_DIR: %v\n", o.env.SyncWatchDir)
	fmt.Fprintf(&b, "METRICS_COLLECTOR: %v\n", o.env.MetricsCollector)
	fmt.Fprintf(&b, "METRICS_LISTEN_ADDR: %v\n", o.env.MetricsListenAddr)
	return b.String()
}
