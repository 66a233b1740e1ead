package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the storage semantics: at most one live lease per
// resource, claims succeed only when the current lease expired or is ours.
type memStore struct {
	mu     sync.Mutex
	leases map[string]memLease
}

type memLease struct {
	holder    string
	expiresAt time.Time
}

func newMemStore() *memStore { return &memStore{leases: map[string]memLease{}} }

func (self *memStore) AcquireLease(ctx context.Context, resource,
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

func (self *memStore) ReleaseLease(ctx context.Context, resource,
	holder string,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if cur, ok := self.leases[resource]; ok && cur.holder == holder {
		delete(self.leases, resource)
	}
	return nil
}

func (self *memStore) RenewLease(ctx context.Context, resource,
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

func (self *memStore) LeaseHolder(ctx context.Context, resource string,
	now time.Time,
) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if cur, ok := self.leases[resource]; ok && cur.expiresAt.After(now) {
		return cur.holder, nil
	}
	return "", nil
}

func TestLockerMutualExclusion(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	b := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second host must not acquire a held lease")

	holder, err := b.HolderOf(ctx, "fetch:hn")
	require.NoError(t, err)
	assert.Equal(t, a.Holder(), holder)
}

func TestLockerConcurrentAcquire(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	ctx := context.Background()

	// Many hosts race for the same lease; the store's atomic claim must
	// admit exactly one.
	const hosts = 16
	var wg sync.WaitGroup
	var acquired atomic.Int32
	for range hosts {
		locker := NewLocker(store, clock)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := locker.Acquire(ctx, "fetch:hn", time.Minute)
			assert.NoError(t, err)
			if ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired.Load())
}

func TestLockerReacquireOwn(t *testing.T) {
	store := newMemStore()
	a := NewLocker(store, clockwork.NewFakeClock())
	ctx := context.Background()

	for range 2 {
		ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestLockerExpiryReclaim(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	b := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Host A crashed; past the TTL the lease is claimable without any
	// explicit release.
	clock.Advance(time.Minute + time.Second)
	ok, err = b.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerStaleReleaseNoop(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	b := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = b.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A's release arrives after B reclaimed the expired lease. B must
	// still hold it.
	require.NoError(t, a.Release(ctx, "fetch:hn"))
	holder, err := a.HolderOf(ctx, "fetch:hn")
	require.NoError(t, err)
	assert.Equal(t, b.Holder(), holder)
}

func TestLockerRelease(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	b := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Release(ctx, "fetch:hn"))

	ok, err = b.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerRenew(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	ok, err = a.Renew(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// The renewed lease survives past the original deadline.
	clock.Advance(45 * time.Second)
	holder, err := a.HolderOf(ctx, "fetch:hn")
	require.NoError(t, err)
	assert.Equal(t, a.Holder(), holder)
}

func TestLockerRenewExpired(t *testing.T) {
	store := newMemStore()
	clock := clockwork.NewFakeClock()
	a := NewLocker(store, clock)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = a.Renew(ctx, "fetch:hn", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "an expired lease must not be renewable")
}
