package metacache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

// infoEntry is one cached (path -> Info) record. It carries its own
// handles into both the LRU list and the GC list so removal from either
// is O(1) without a second lookup — the same back-reference trick the
// teacher's Cache uses for its single list, doubled up here because
// InfoCache tracks recency and insertion order independently.
type infoEntry struct {
	path    string
	info    *Info
	matcher *AttributeMatcher
	flags   QueryFlags
	stamp   time.Time

	lruElem *list.Element
	gcElem  *list.Element
}

// InfoCache is a bounded, path-keyed cache of file metadata with LRU
// overflow eviction and amortized time-based garbage collection.
type InfoCache struct {
	mu sync.Mutex

	entries map[string]*infoEntry
	lru     *list.List // front = most recently used, back = eviction candidate
	gc      *list.List // front = oldest inserted, back = newest

	maxCount int
	maxTime  time.Duration
	gcEvery  time.Duration
	gcStamp  time.Time

	disableCount int

	stats   Stats
	logger  *zap.Logger
	metrics *cacheMetrics
}

// NewInfoCache builds an InfoCache holding at most maxCount entries, each
// valid for maxTime before it becomes a garbage-collection candidate.
func NewInfoCache(maxCount int, maxTime time.Duration, opts ...InfoCacheOption) *InfoCache {
	c := &InfoCache{
		entries: make(map[string]*infoEntry),
		lru:     list.New(),
		gc:      list.New(),

		maxCount: maxCount,
		maxTime:  maxTime,
		gcEvery:  maxTime / 2,
		gcStamp:  time.Now(),

		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InfoCacheOption configures an InfoCache at construction time.
type InfoCacheOption func(*InfoCache)

// WithInfoCacheLogger attaches a logger used for GC/eviction diagnostics.
func WithInfoCacheLogger(l *zap.Logger) InfoCacheOption {
	return func(c *InfoCache) { c.logger = l }
}

// Insert records info for path under matcher/flags, replacing whatever
// was cached for that path before. A no-op while the cache is disabled.
func (c *InfoCache) Insert(path string, info *Info, matcher *AttributeMatcher, flags QueryFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disableCount > 0 {
		return
	}

	now := time.Now()
	if e, ok := c.entries[path]; ok {
		e.info = info
		e.matcher = matcher
		e.flags = flags
		e.stamp = now
		c.lru.MoveToFront(e.lruElem)
		c.gc.MoveToBack(e.gcElem)
		c.gcLocked(now)
		return
	}

	if c.maxCount > 0 && len(c.entries) >= c.maxCount {
		c.evictLRULocked()
	}

	e := &infoEntry{path: path, info: info, matcher: matcher, flags: flags, stamp: now}
	e.lruElem = c.lru.PushFront(e)
	e.gcElem = c.gc.PushBack(e)
	c.entries[path] = e

	c.gcLocked(now)
}

// Find looks up path, returning the cached Info only if it's still
// within its TTL and matcher/flags cover the request.
func (c *InfoCache) Find(path string, matcher *AttributeMatcher, flags QueryFlags) (*Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.gcLocked(now)

	e, ok := c.entries[path]
	if !ok {
		return c.miss()
	}
	if now.Sub(e.stamp) > c.maxTime {
		c.removeLocked(e)
		return c.miss()
	}
	if !c.matchesLocked(e, matcher, flags) {
		return c.miss()
	}

	c.lru.MoveToFront(e.lruElem)
	c.stats.Hits++
	if c.metrics != nil {
		c.metrics.hits.Inc()
	}
	return e.info.Clone(), true
}

func (c *InfoCache) miss() (*Info, bool) {
	c.stats.Misses++
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	return nil, false
}

// matchesLocked implements the flag-matching rule: an entry cached
// without following symlinks can still answer a followed-lookup query,
// provided the entry isn't itself a symlink and its matcher covers
// whether something is a symlink (so the caller can trust the negative).
// EnumCache, by contrast, requires exact flag equality — see enumcache.go.
func (c *InfoCache) matchesLocked(e *infoEntry, matcher *AttributeMatcher, flags QueryFlags) bool {
	if e.flags != flags {
		lenient := e.flags.Has(QueryFlagNoFollowSymlinks) &&
			!flags.Has(QueryFlagNoFollowSymlinks) &&
			!e.info.IsSymlink() &&
			e.matcher.Matches("standard::is-symlink")
		if !lenient {
			return false
		}
	}
	missing := matcher.Subtract(e.matcher)
	return missing == nil || missing.IsEmpty()
}

// Invalidate drops path from the cache. When maybeDir is true and the
// cached entry for path is missing or is not a regular file, path may be
// a directory whose descendants are cached under their own paths, so
// every entry is dropped instead.
func (c *InfoCache) Invalidate(path string, maybeDir bool) {
	c.mu.Lock()
	if e, ok := c.entries[path]; maybeDir && (!ok || e.info.Type() != TypeRegular) {
		c.entries = make(map[string]*infoEntry)
		c.lru.Init()
		c.gc.Init()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Remove(path)
}

// Remove drops path from the cache if present.
func (c *InfoCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gcLocked(time.Now())
	if e, ok := c.entries[path]; ok {
		c.removeLocked(e)
	}
}

// RemoveAll empties the cache.
func (c *InfoCache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*infoEntry)
	c.lru.Init()
	c.gc.Init()
}

// Disable suspends Insert until a matching Enable call. Calls nest.
func (c *InfoCache) Disable() {
	c.mu.Lock()
	c.disableCount++
	c.mu.Unlock()
}

// Enable reverses one Disable call. Calling Enable more times than
// Disable was called is a programmer error, not a runtime condition the
// cache can recover from, so it panics rather than silently clamping.
func (c *InfoCache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disableCount == 0 {
		panic("metacache: InfoCache.Enable called without a matching Disable")
	}
	c.disableCount--
}

// IsDisabled reports whether inserts are currently suspended.
func (c *InfoCache) IsDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disableCount > 0
}

// Count returns the number of entries currently cached.
func (c *InfoCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *InfoCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *InfoCache) evictLRULocked() {
	e := c.lru.Back()
	if e == nil {
		return
	}
	entry := e.Value.(*infoEntry)
	c.removeLocked(entry)
	c.stats.Evictions++
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}
	c.logger.Debug("info cache evicted entry", zap.String("path", entry.path))
}

// gcLocked performs an amortized sweep over the GC list: if enough time
// has passed since the last pass, every entry at the head that has
// outlived maxTime is collected, stopping at the first still-fresh
// entry (or an empty list). This is deliberately not a full unconditional
// sweep — it only runs once gcEvery has elapsed, piggybacking on
// whichever call (Find/Insert/Invalidate) happens to run after that,
// trading a little staleness for never blocking a request on an O(n)
// scan when nothing has expired.
func (c *InfoCache) gcLocked(now time.Time) {
	if c.maxTime <= 0 || now.Sub(c.gcStamp) < c.gcEvery {
		return
	}
	c.gcStamp = now

	for {
		front := c.gc.Front()
		if front == nil {
			return
		}
		oldest := front.Value.(*infoEntry)
		if now.Sub(oldest.stamp) <= c.maxTime {
			return
		}
		c.removeLocked(oldest)
		c.stats.GCCollections++
		if c.metrics != nil {
			c.metrics.gcCollected.Inc()
		}
		c.logger.Debug("info cache gc collected entry", zap.String("path", oldest.path))
	}
}

func (c *InfoCache) removeLocked(e *infoEntry) {
	c.lru.Remove(e.lruElem)
	c.gc.Remove(e.gcElem)
	delete(c.entries, e.path)
}
