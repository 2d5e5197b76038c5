package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls atomic.Int32
	value atomic.Int32
	err   atomic.Pointer[error]
}

func (c *counter) fetch(ctx context.Context) (any, error) {
	c.calls.Add(1)
	if p := c.err.Load(); p != nil {
		return nil, *p
	}
	return int(c.value.Load()), nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(Config{StaleTime: time.Minute}, nil)
	t.Cleanup(c.Close)
	return c
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) onChange(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestCache_QueryCachesFreshData(t *testing.T) {
	c := newTestCache(t)
	var src counter
	src.value.Store(1)

	v, err := c.Query(context.Background(), OrderStats(), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	src.value.Store(2)
	v, err = c.Query(context.Background(), OrderStats(), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "fresh data is served from cache")
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_QueryRefetchesAfterStaleTime(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()
	c.now = func() time.Time { return now }

	var src counter
	src.value.Store(1)
	_, err := c.Query(context.Background(), OrderStats(), src.fetch)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	src.value.Store(2)
	v, err := c.Query(context.Background(), OrderStats(), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCache_QueryWithoutFetcher(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Query(context.Background(), OrderDetail(1), nil)
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestCache_ConcurrentQueriesShareFetch(t *testing.T) {
	c := newTestCache(t)

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "orders", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Query(context.Background(), OrderList(nil), fetch)
			assert.NoError(t, err)
			assert.Equal(t, "orders", v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_InvalidateMarksStaleAndRefetchesWatched(t *testing.T) {
	c := newTestCache(t)

	var list, stats, detail counter
	list.value.Store(1)
	stats.value.Store(1)
	detail.value.Store(1)

	// Watched list, unwatched stats, watched detail.
	var rec recorder
	stop := c.Watch(OrderList(nil), list.fetch, rec.onChange)
	defer stop()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.Query(context.Background(), OrderStats(), stats.fetch)
	require.NoError(t, err)

	var detailRec recorder
	stopDetail := c.Watch(OrderDetail(42), detail.fetch, detailRec.onChange)
	defer stopDetail()
	require.Eventually(t, func() bool { return detailRec.count() == 1 }, time.Second, 5*time.Millisecond)

	list.value.Store(2)
	n := c.Invalidate(OrdersRoot)
	assert.Equal(t, 2, n, "list and stats match the orders root")

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.last().Data)
	assert.False(t, rec.last().Stale)

	// Unwatched entries are only marked stale.
	snap, ok := c.Get(OrderStats())
	require.True(t, ok)
	assert.True(t, snap.Stale)
	assert.Equal(t, int32(1), stats.calls.Load())

	// Details are outside the root.
	assert.Equal(t, int32(1), detail.calls.Load())
	snap, _ = c.Get(OrderDetail(42))
	assert.False(t, snap.Stale)

	// The stale unwatched entry refetches on the next read.
	stats.value.Store(5)
	v, err := c.Query(context.Background(), OrderStats(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestCache_InvalidateDetail(t *testing.T) {
	c := newTestCache(t)

	var detail counter
	detail.value.Store(1)

	var rec recorder
	stop := c.Watch(OrderDetail(42), detail.fetch, rec.onChange)
	defer stop()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	detail.value.Store(2)
	assert.Equal(t, 1, c.Invalidate(OrderDetail(42)))
	assert.Equal(t, 0, c.Invalidate(OrderDetail(43)))

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.last().Data)
}

func TestCache_FetchErrorKeepsDataAndStaleness(t *testing.T) {
	c := newTestCache(t)

	var src counter
	src.value.Store(1)

	var rec recorder
	stop := c.Watch(OrderStats(), src.fetch, rec.onChange)
	defer stop()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	boom := errors.New("api down")
	src.err.Store(&boom)
	c.Invalidate(OrdersRoot)

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	last := rec.last()
	assert.ErrorIs(t, last.Err, boom)
	assert.Equal(t, 1, last.Data)
	assert.True(t, last.Stale)
}

func TestCache_WatchServesCachedDataFirst(t *testing.T) {
	c := newTestCache(t)
	c.SetData(OrderDetail(7), "cached")

	var src counter
	var rec recorder
	stop := c.Watch(OrderDetail(7), src.fetch, rec.onChange)
	defer stop()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "cached", rec.last().Data)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), src.calls.Load(), "fresh data is not refetched")
}

func TestCache_UnwatchStopsRefetch(t *testing.T) {
	c := newTestCache(t)

	var src counter
	var rec recorder
	stop := c.Watch(OrderStats(), src.fetch, rec.onChange)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	c.Invalidate(OrdersRoot)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, rec.count())
}

func TestCache_Remove(t *testing.T) {
	c := newTestCache(t)
	c.SetData(OrderDetail(42), "order 42")
	c.SetData(OrderDetail(43), "order 43")
	c.SetData(OrderStats(), "stats")

	var rec recorder
	stop := c.Watch(OrderDetail(42), nil, rec.onChange)
	defer stop()

	assert.Equal(t, 1, c.Remove(OrderDetail(42)))

	_, ok := c.Get(OrderDetail(42))
	assert.False(t, ok)
	_, ok = c.Get(OrderDetail(43))
	assert.True(t, ok)

	require.Equal(t, 2, rec.count())
	assert.True(t, rec.last().Removed)
}

func TestCache_SupersededFetchIsDiscarded(t *testing.T) {
	c := newTestCache(t)

	slow := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	fetch := func(ctx context.Context) (any, error) {
		if first.CompareAndSwap(true, false) {
			<-slow
			return "old", nil
		}
		return "new", nil
	}

	var rec recorder
	stop := c.Watch(OrderList(nil), fetch, rec.onChange)
	defer stop()

	// The invalidation starts a second fetch that finishes first.
	time.Sleep(10 * time.Millisecond)
	c.Invalidate(OrdersRoot)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "new", rec.last().Data)

	close(slow)
	time.Sleep(20 * time.Millisecond)

	snap, _ := c.Get(OrderList(nil))
	assert.Equal(t, "new", snap.Data)
	assert.Equal(t, 1, rec.count())
}
