package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newshub.app/internal/model"
)

func newTestBucket(t *testing.T) *FSBucket {
	t.Helper()
	return NewFSBucket(afero.NewMemMapFs(), "/bucket")
}

func collect() (func(ctx context.Context, update *model.SyncUpdate),
	*[]model.SyncUpdate, *sync.Mutex,
) {
	var mu sync.Mutex
	var got []model.SyncUpdate
	return func(ctx context.Context, update *model.SyncUpdate) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, *update)
	}, &got, &mu
}

func TestKeyRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 123).UTC()
	key := updateKey("sync/", "hn", at)

	resourceID, publishedAt, ok := parseKey("sync/", key)
	require.True(t, ok)
	assert.Equal(t, "hn", resourceID)
	assert.True(t, at.Equal(publishedAt))

	_, _, ok = parseKey("sync/", "other/garbage")
	assert.False(t, ok)
	_, _, ok = parseKey("sync/", "sync/hn/not-a-number.json")
	assert.False(t, ok)
}

func TestFSBucketRoundTrip(t *testing.T) {
	bucket := newTestBucket(t)
	ctx := context.Background()

	require.NoError(t, bucket.Put(ctx, "sync/hn/1.json", []byte("a")))
	require.NoError(t, bucket.Put(ctx, "sync/hn/2.json", []byte("b")))
	require.NoError(t, bucket.Put(ctx, "other/x.json", []byte("c")))

	data, err := bucket.Get(ctx, "sync/hn/1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	keys, err := bucket.List(ctx, "sync/")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"sync/hn/1.json", "sync/hn/2.json"}, keys)

	require.NoError(t, bucket.Delete(ctx, "sync/hn/1.json"))
	keys, err = bucket.List(ctx, "sync/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sync/hn/2.json"}, keys)

	// Deleting a missing object is not an error.
	require.NoError(t, bucket.Delete(ctx, "sync/hn/1.json"))
}

func TestPublishAndPoll(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	publisher := NewPublisher(bucket, "sync/", clock)
	watcher := NewWatcher(bucket, "sync/", time.Minute, clock)
	fn, got, mu := collect()
	watcher.RegisterCallback(fn)

	require.NoError(t, publisher.Publish(ctx, "hn", []byte(`{"n":1}`)))
	require.NoError(t, watcher.Poll(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 1)
	update := (*got)[0]
	assert.Equal(t, "hn", update.ResourceID)
	assert.Equal(t, []byte(`{"n":1}`), update.Payload)
	assert.Equal(t, publisher.ID(), update.PublisherID)
}

func TestPollAppliesInOrderOncePerUpdate(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	publisher := NewPublisher(bucket, "sync/", clock)
	watcher := NewWatcher(bucket, "sync/", time.Minute, clock)
	fn, got, mu := collect()
	watcher.RegisterCallback(fn)

	require.NoError(t, publisher.Publish(ctx, "hn", []byte("1")))
	clock.Advance(time.Second)
	require.NoError(t, publisher.Publish(ctx, "hn", []byte("2")))

	require.NoError(t, watcher.Poll(ctx))
	// A second poll over the same bucket must deliver nothing new.
	require.NoError(t, watcher.Poll(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *got, 2)
	assert.Equal(t, []byte("1"), (*got)[0].Payload)
	assert.Equal(t, []byte("2"), (*got)[1].Payload)
}

func TestPollDiscardsOlderThanApplied(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	publisher := NewPublisher(bucket, "sync/", clock)
	watcher := NewWatcher(bucket, "sync/", time.Minute, clock)

	clock.Advance(time.Hour)
	require.NoError(t, publisher.Publish(ctx, "hn", []byte("new")))
	require.NoError(t, watcher.Poll(ctx))

	fn, got, mu := collect()
	watcher.RegisterCallback(fn)

	// An older update shows up late, e.g. from a slow replicated write.
	old := updateKey("sync/", "hn", clock.Now().Add(-30*time.Minute))
	require.NoError(t, bucket.Put(ctx, old, []byte(`{}`)))
	require.NoError(t, watcher.Poll(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *got, "state must never move backwards")
}

func TestPollIgnoresOwnPublisher(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	publisher := NewPublisher(bucket, "sync/", clock)
	watcher := NewWatcher(bucket, "sync/", time.Minute, clock)
	watcher.IgnorePublisher(publisher.ID())
	fn, got, mu := collect()
	watcher.RegisterCallback(fn)

	require.NoError(t, publisher.Publish(ctx, "hn", []byte("own")))
	require.NoError(t, watcher.Poll(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *got)
}

func TestPollSkipsMalformedUpdate(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	watcher := NewWatcher(bucket, "sync/", time.Minute, clock)
	fn, got, mu := collect()
	watcher.RegisterCallback(fn)

	key := updateKey("sync/", "hn", clock.Now())
	require.NoError(t, bucket.Put(ctx, key, []byte("not json")))
	require.NoError(t, watcher.Poll(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *got)
}

func TestCleanup(t *testing.T) {
	bucket := newTestBucket(t)
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	publisher := NewPublisher(bucket, "sync/", clock)
	require.NoError(t, publisher.Publish(ctx, "hn", []byte("old")))

	clock.Advance(48 * time.Hour)
	require.NoError(t, publisher.Publish(ctx, "hn", []byte("new")))

	removed, err := Cleanup(ctx, bucket, "sync/", 24*time.Hour, clock)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keys, err := bucket.List(ctx, "sync/")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	// The surviving object is the recent one.
	_, publishedAt, ok := parseKey("sync/", keys[0])
	require.True(t, ok)
	assert.True(t, publishedAt.Equal(clock.Now()))
}
