package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newshub.app/internal/cache"
	"newshub.app/internal/dedup"
	"newshub.app/internal/fetcher"
	"newshub.app/internal/lease"
	"newshub.app/internal/model"
	"newshub.app/internal/syncer"
)

const rssSample = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0"><channel><title>T</title>
<item><title>One</title><link>https://example.org/one</link></item>
<item><title>Two</title><link>https://example.org/two</link></item>
</channel></rss>`

type memTier2 struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func newMemTier2() *memTier2 {
	return &memTier2{entries: map[string]memEntry{}}
}

func (self *memTier2) CacheGet(ctx context.Context, namespace, key string,
	now time.Time,
) ([]byte, time.Time, bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	e, ok := self.entries[namespace+"/"+key]
	if !ok || !e.expiresAt.After(now) {
		return nil, time.Time{}, false, nil
	}
	return e.value, e.expiresAt, true, nil
}

func (self *memTier2) CacheSet(ctx context.Context, namespace, key string,
	value []byte, now time.Time, ttl time.Duration,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.entries[namespace+"/"+key] = memEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (self *memTier2) CacheDelete(ctx context.Context, namespace, key string,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	delete(self.entries, namespace+"/"+key)
	return nil
}

type memLeases struct {
	mu     sync.Mutex
	leases map[string]memLease
}

type memLease struct {
	holder    string
	expiresAt time.Time
}

func newMemLeases() *memLeases {
	return &memLeases{leases: map[string]memLease{}}
}

func (self *memLeases) AcquireLease(ctx context.Context, resource,
	holder string, now, expiresAt time.Time,
) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	cur, ok := self.leases[resource]
	if ok && cur.holder != holder && cur.expiresAt.After(now) {
		return false, nil
	}
	self.leases[resource] = memLease{holder: holder, expiresAt: expiresAt}
	return true, nil
}

func (self *memLeases) ReleaseLease(ctx context.Context, resource,
	holder string,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if cur, ok := self.leases[resource]; ok && cur.holder == holder {
		delete(self.leases, resource)
	}
	return nil
}

func (self *memLeases) RenewLease(ctx context.Context, resource,
	holder string, now, expiresAt time.Time,
) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	cur, ok := self.leases[resource]
	if !ok || cur.holder != holder || !cur.expiresAt.After(now) {
		return false, nil
	}
	self.leases[resource] = memLease{holder: holder, expiresAt: expiresAt}
	return true, nil
}

func (self *memLeases) LeaseHolder(ctx context.Context, resource string,
	now time.Time,
) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if cur, ok := self.leases[resource]; ok && cur.expiresAt.After(now) {
		return cur.holder, nil
	}
	return "", nil
}

type memHistory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemHistory() *memHistory {
	return &memHistory{seen: map[string]time.Time{}}
}

func (self *memHistory) KnownFingerprints(ctx context.Context, scope string,
	hashes []string, since time.Time,
) (map[string]struct{}, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	known := map[string]struct{}{}
	for _, h := range hashes {
		if at, ok := self.seen[scope+"/"+h]; ok && !at.Before(since) {
			known[h] = struct{}{}
		}
	}
	return known, nil
}

func (self *memHistory) RememberFingerprints(ctx context.Context,
	scope string, hashes []string, now time.Time,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, h := range hashes {
		self.seen[scope+"/"+h] = now
	}
	return nil
}

func (self *memHistory) PruneFingerprints(ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	return 0, nil
}

type testEnv struct {
	cache     *cache.Cache
	tier2     *memTier2
	leases    *memLeases
	locker    *lease.Locker
	publisher *syncer.Publisher
	bucket    *syncer.FSBucket
	clock     clockwork.Clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewRealClock()
	tier2 := newMemTier2()
	leases := newMemLeases()
	return &testEnv{
		cache:  cache.New(tier2, 64, time.Minute, clock),
		tier2:  tier2,
		leases: leases,
		locker: lease.NewLocker(leases, clock),
		clock:  clock,
	}
}

func (self *testEnv) withPublisher(t *testing.T) *testEnv {
	t.Helper()
	self.bucket = syncer.NewFSBucket(afero.NewMemMapFs(), "/bucket")
	self.publisher = syncer.NewPublisher(self.bucket, "sync/", self.clock)
	return self
}

func (self *testEnv) runner(maxAttempts int) *Runner {
	deduper := dedup.New(newMemHistory(), 24*time.Hour, true, self.clock)
	selector := fetcher.NewSelector(fetcher.Options{HostRate: 1000})
	return NewRunner(self.cache, self.locker, deduper, selector,
		self.publisher, self.clock, time.Minute, 5*time.Second, maxAttempts)
}

func (self *testEnv) task(url string) *model.FetchTask {
	return &model.FetchTask{
		Source:      model.FeedSource{ID: "t1", URL: url, ScheduleHours: 1},
		TriggeredAt: self.clock.Now(),
		State:       model.TaskQueued,
	}
}

func (self *testEnv) status(t *testing.T, sourceID string,
) *model.SourceStatus {
	t.Helper()
	data, err := self.cache.Get(context.Background(), NamespaceStatus,
		sourceID)
	require.NoError(t, err)

	var status model.SourceStatus
	require.NoError(t, json.Unmarshal(data, &status))
	return &status
}

func feedServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			fmt.Fprint(w, body)
		}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRunnerProcessSuccess(t *testing.T) {
	srv, _ := feedServer(t, rssSample)
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.task(srv.URL)
	env.runner(1).Process(ctx, task)

	assert.Equal(t, model.TaskSucceeded, task.State)
	require.NoError(t, task.LastErr)

	data, err := env.cache.Get(ctx, NamespaceArticles, "t1")
	require.NoError(t, err)
	var articles model.Articles
	require.NoError(t, json.Unmarshal(data, &articles))
	assert.Len(t, articles, 2)

	status := env.status(t, "t1")
	assert.Equal(t, model.TaskSucceeded, status.LastStatus)
	assert.Equal(t, 2, status.ArticleCount)
	assert.Empty(t, status.LastError)

	holder, err := env.locker.HolderOf(ctx, LeaseResource("t1"))
	require.NoError(t, err)
	assert.Empty(t, holder, "the lease must be released after the task")
}

func TestRunnerProcessSkippedLocked(t *testing.T) {
	srv, hits := feedServer(t, rssSample)
	env := newTestEnv(t)
	ctx := context.Background()

	// The other host holds the lease for this source.
	other := lease.NewLocker(env.leases, env.clock)
	ok, err := other.Acquire(ctx, LeaseResource("t1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	task := env.task(srv.URL)
	env.runner(1).Process(ctx, task)

	assert.Equal(t, model.TaskSkippedLocked, task.State)
	assert.Zero(t, hits.Load(), "a locked source must not be fetched")

	_, err = env.cache.Get(ctx, NamespaceStatus, "t1")
	assert.ErrorIs(t, err, cache.ErrMiss,
		"a skipped task records no status")
}

func TestRunnerProcessPermanentFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t)
	task := env.task(srv.URL)
	env.runner(3).Process(context.Background(), task)

	assert.Equal(t, model.TaskFailed, task.State)
	assert.Equal(t, 1, task.Attempts, "permanent failures are not retried")

	status := env.status(t, "t1")
	assert.Equal(t, model.TaskFailed, status.LastStatus)
	assert.NotEmpty(t, status.LastError)
}

func TestRunnerProcessTransientRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, rssSample)
		}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t)
	task := env.task(srv.URL)
	env.runner(2).Process(context.Background(), task)

	assert.Equal(t, model.TaskSucceeded, task.State)
	assert.Equal(t, 2, task.Attempts)
}

func TestRunnerDedupAcrossRuns(t *testing.T) {
	srv, _ := feedServer(t, rssSample)
	env := newTestEnv(t)
	runner := env.runner(1)
	ctx := context.Background()

	runner.Process(ctx, env.task(srv.URL))

	second := env.task(srv.URL)
	runner.Process(ctx, second)
	assert.Equal(t, model.TaskSucceeded, second.State)

	// Unchanged feed content yields no new articles on the second run,
	// but the previously cached ones survive.
	status := env.status(t, "t1")
	assert.Zero(t, status.ArticleCount)

	data, err := env.cache.Get(ctx, NamespaceArticles, "t1")
	require.NoError(t, err)
	var articles model.Articles
	require.NoError(t, json.Unmarshal(data, &articles))
	assert.Len(t, articles, 2)
}

func TestRunnerPublishes(t *testing.T) {
	srv, _ := feedServer(t, rssSample)
	env := newTestEnv(t).withPublisher(t)
	ctx := context.Background()

	env.runner(1).Process(ctx, env.task(srv.URL))

	keys, err := env.bucket.List(ctx, "sync/")
	require.NoError(t, err)
	require.Len(t, keys, 1, "a successful fetch publishes one update")
}
