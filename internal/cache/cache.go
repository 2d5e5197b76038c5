package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoFetcher is returned by Query when neither the call nor an earlier
// Watch supplied a fetcher for the key.
var ErrNoFetcher = errors.New("no fetcher for key")

// Fetcher loads the data of one query.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is the observable state of one entry.
type Snapshot struct {
	Key       Key
	Data      any
	Err       error // last fetch error; Data keeps the previous value
	UpdatedAt time.Time
	Stale     bool
	Removed   bool
}

// Config holds cache settings.
type Config struct {
	StaleTime    time.Duration // age after which data is refetched on read
	FetchTimeout time.Duration // bound on background refetches
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleTime:    30 * time.Second,
		FetchTimeout: 30 * time.Second,
	}
}

type watcher struct {
	id       uint64
	onChange func(Snapshot)
}

type entry struct {
	key       Key
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	fetch     Fetcher

	// started counts fetches, applied is the newest one stored, and
	// invalidated is the newest one that started before Invalidate.
	started     uint64
	applied     uint64
	invalidated uint64

	watchers []watcher
}

// Cache is a keyed query cache with prefix invalidation.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]*entry
	watcherID uint64
}

// New creates an empty cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.StaleTime <= 0 {
		cfg.StaleTime = def.StaleTime
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Query returns fresh cached data or fetches it. Concurrent queries for the
// same key share one fetch.
func (c *Cache) Query(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	}
	if c.freshLocked(e) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	fetch = e.fetch
	c.mu.Unlock()

	if fetch == nil {
		return nil, ErrNoFetcher
	}
	return c.load(ctx, key, fetch)
}

// Watch registers an active subscriber for key. onChange receives the
// current snapshot when data is cached, then every update. Missing or stale
// data is fetched in the background. The returned function unsubscribes.
func (c *Cache) Watch(key Key, fetch Fetcher, onChange func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	}
	c.watcherID++
	id := c.watcherID
	e.watchers = append(e.watchers, watcher{id: id, onChange: onChange})

	var initial *Snapshot
	if e.hasData {
		s := c.snapshotLocked(e)
		initial = &s
	}
	needFetch := !c.freshLocked(e) && e.fetch != nil
	fetch = e.fetch
	c.mu.Unlock()

	if initial != nil && onChange != nil {
		onChange(*initial)
	}
	if needFetch {
		c.refetch(key, fetch)
	}

	return func() { c.unwatch(key, id) }
}

// Invalidate marks every entry under prefix stale and refetches the ones
// with active subscribers. It returns the number of matching entries.
func (c *Cache) Invalidate(prefix Key) int {
	type job struct {
		key   Key
		fetch Fetcher
	}

	c.mu.Lock()
	var jobs []job
	matched := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		matched++
		e.invalidated = e.started
		if len(e.watchers) > 0 && e.fetch != nil {
			jobs = append(jobs, job{key: e.key, fetch: e.fetch})
		}
	}
	c.mu.Unlock()

	for _, j := range jobs {
		// Do not join a fetch that started before the invalidation.
		c.group.Forget(j.key.String())
		c.refetch(j.key, j.fetch)
	}

	c.logger.Debug("cache invalidated", "prefix", prefix.String(), "matched", matched, "refetching", len(jobs))
	return matched
}

// Remove drops every entry under prefix. Subscribers of removed entries get
// a final snapshot with Removed set. It returns the number of entries removed.
func (c *Cache) Remove(prefix Key) int {
	type notice struct {
		watchers []watcher
		snap     Snapshot
	}

	c.mu.Lock()
	var notices []notice
	removed := 0
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		delete(c.entries, id)
		c.group.Forget(id)
		removed++
		if len(e.watchers) > 0 {
			notices = append(notices, notice{
				watchers: e.watchers,
				snap:     Snapshot{Key: e.key, Removed: true},
			})
		}
	}
	c.mu.Unlock()

	for _, n := range notices {
		notify(n.watchers, n.snap)
	}

	c.logger.Debug("cache entries removed", "prefix", prefix.String(), "removed", removed)
	return removed
}

// SetData stores data for key as fresh and notifies subscribers.
func (c *Cache) SetData(key Key, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.started++
	e.applied = e.started
	e.data = data
	e.hasData = true
	e.err = nil
	e.updatedAt = c.now()
	snap := c.snapshotLocked(e)
	watchers := append([]watcher(nil), e.watchers...)
	c.mu.Unlock()

	notify(watchers, snap)
}

// Get returns the snapshot of key without fetching.
func (c *Cache) Get(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshotLocked(e), true
}

// Keys returns the keys of all entries.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Close stops background refetches and waits for them.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// refetch loads key in the background.
func (c *Cache) refetch(key Key, fetch Fetcher) {
	if c.ctx.Err() != nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.FetchTimeout)
		defer cancel()

		if _, err := c.load(ctx, key, fetch); err != nil {
			c.logger.Warn("refetch failed", "key", key.String(), "error", err)
		}
	}()
}

// load runs one shared fetch for key and stores the result.
func (c *Cache) load(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	id := key.String()

	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.started++
		seq := e.started
		c.mu.Unlock()

		data, err := fetch(ctx)
		c.store(key, seq, data, err)
		return data, err
	})

	return v, err
}

// store applies a fetch result unless a newer one was already stored.
func (c *Cache) store(key Key, seq uint64, data any, err error) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || seq < e.applied {
		// Removed meanwhile, or superseded by a newer fetch.
		c.mu.Unlock()
		return
	}

	if err != nil {
		// Keep the previous data and its staleness.
		e.err = err
	} else {
		e.applied = seq
		e.data = data
		e.hasData = true
		e.err = nil
		e.updatedAt = c.now()
	}
	snap := c.snapshotLocked(e)
	watchers := append([]watcher(nil), e.watchers...)
	c.mu.Unlock()

	notify(watchers, snap)
}

func (c *Cache) unwatch(key Key, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return
	}
	for i, w := range e.watchers {
		if w.id == id {
			e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
			return
		}
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	return e
}

// freshLocked reports whether e holds data that is neither invalidated nor
// older than the stale time.
func (c *Cache) freshLocked(e *entry) bool {
	return e.hasData && !c.staleLocked(e)
}

func (c *Cache) staleLocked(e *entry) bool {
	if e.applied <= e.invalidated {
		return true
	}
	return c.now().Sub(e.updatedAt) >= c.cfg.StaleTime
}

func (c *Cache) snapshotLocked(e *entry) Snapshot {
	return Snapshot{
		Key:       e.key,
		Data:      e.data,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
		Stale:     c.staleLocked(e),
	}
}

func notify(watchers []watcher, snap Snapshot) {
	for _, w := range watchers {
		if w.onChange != nil {
			w.onChange(snap)
		}
	}
}
