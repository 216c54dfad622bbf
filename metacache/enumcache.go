package metacache

import (
	"container/list"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// lruBucketCount is the number of size-adjusted LRU buckets. An entry's
// bucket is floor(log4(count)) clamped to [0, lruBucketCount-1], so
// directories with a handful of children and directories with tens of
// thousands don't compete for the same eviction slot on equal footing.
const lruBucketCount = 5

// enumEntry is one cached directory listing.
type enumEntry struct {
	path    string
	infos   []*Info
	matcher *AttributeMatcher
	flags   QueryFlags
	stamp   time.Time
	count   int

	bucket     int
	bucketElem *list.Element
	gcElem     *list.Element

	// committed distinguishes a reservation made by Insert from a
	// listing actually populated by Set — see the two-phase protocol
	// on EnumCache.Insert/Set below.
	committed bool
}

// EnumCache caches directory enumeration results keyed by path, using a
// size-adjusted LRU (SA-LRU): eviction picks the bucketed entry that
// maximizes count*(now-stamp), so a huge listing cached long ago is
// evicted before a small, recent one. Each listing weighs its child
// count (at least 1), and the sum of weights is what max_count bounds.
type EnumCache struct {
	mu sync.Mutex

	entries map[string]*enumEntry
	buckets [lruBucketCount]*list.List
	gc      *list.List

	totalWeight int
	maxCount    int
	maxTime     time.Duration
	gcEvery     time.Duration
	gcStamp     time.Time

	disableCount int

	stats   Stats
	logger  *zap.Logger
	metrics *cacheMetrics
}

// EnumCacheOption configures an EnumCache at construction time.
type EnumCacheOption func(*EnumCache)

// WithEnumCacheLogger attaches a logger used for GC/eviction diagnostics.
func WithEnumCacheLogger(l *zap.Logger) EnumCacheOption {
	return func(c *EnumCache) { c.logger = l }
}

// NewEnumCache builds an EnumCache whose total bucketed weight stays
// within maxCount, each entry valid for maxTime.
func NewEnumCache(maxCount int, maxTime time.Duration, opts ...EnumCacheOption) *EnumCache {
	c := &EnumCache{
		entries:  make(map[string]*enumEntry),
		gc:       list.New(),
		maxCount: maxCount,
		maxTime:  maxTime,
		gcEvery:  maxTime / 2,
		gcStamp:  time.Now(),
		logger:   zap.NewNop(),
	}
	for i := range c.buckets {
		c.buckets[i] = list.New()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func bucketFor(count int) int {
	if count < 1 {
		return 0
	}
	b := int(math.Log(float64(count)) / math.Log(4))
	if b < 0 {
		b = 0
	}
	if b >= lruBucketCount {
		b = lruBucketCount - 1
	}
	return b
}

// Insert reserves a slot for path, returning the timestamp the caller
// must later hand back to Set. This two-phase split exists so the
// backend can perform the (potentially slow) directory scan without
// holding EnumCache's lock: Insert is fast and lock-scoped, the scan
// happens unlocked, and Set does the second fast, lock-scoped commit.
// A concurrent Insert for the same path before Set lands simply
// replaces the reservation's stamp; only a Set carrying that newest
// stamp commits.
func (c *EnumCache) Insert(path string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.disableCount > 0 {
		return now
	}
	if e, ok := c.entries[path]; ok && !e.committed {
		e.stamp = now
		return now
	}
	e := &enumEntry{path: path, stamp: now, committed: false}
	e.gcElem = c.gc.PushBack(e)
	c.entries[path] = e
	return now
}

// Set commits the listing obtained for path, provided stamp still
// matches the outstanding reservation (an intervening Invalidate or a
// newer Insert for the same path makes this a no-op, since the data
// being committed is now stale).
func (c *EnumCache) Set(path string, infos []*Info, matcher *AttributeMatcher, flags QueryFlags, stamp time.Time, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.committed || !e.stamp.Equal(stamp) {
		return
	}

	e.infos = infos
	e.matcher = matcher
	e.flags = flags
	e.count = count
	e.committed = true
	e.bucket = bucketFor(count)

	c.buckets[e.bucket].PushBack(e)
	e.bucketElem = c.buckets[e.bucket].Back()
	c.totalWeight += weightOf(count)

	c.evictLocked()
}

func weightOf(count int) int {
	if count < 1 {
		return 1
	}
	return count
}

// Find returns the cached listing for path if it's valid and matcher/
// flags cover the request. Unlike InfoCache, EnumCache requires exact
// flag equality: a directory listing gathered with symlinks followed
// can't safely stand in for one that must not follow them, or vice
// versa, because every entry's type in the listing would be wrong.
func (c *EnumCache) Find(path string, matcher *AttributeMatcher, flags QueryFlags) ([]*Info, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.gcLocked(now)

	e, ok := c.entries[path]
	if !ok || !e.committed {
		return c.miss()
	}
	if now.Sub(e.stamp) > c.maxTime {
		c.removeLocked(e)
		return c.miss()
	}
	if e.flags != flags {
		return c.miss()
	}
	if missing := matcher.Subtract(e.matcher); missing != nil && !missing.IsEmpty() {
		return c.miss()
	}

	c.touchLocked(e)
	c.stats.Hits++
	if c.metrics != nil {
		c.metrics.hits.Inc()
	}
	infos := make([]*Info, len(e.infos))
	for i, info := range e.infos {
		infos[i] = info.Clone()
	}
	return infos, e.count, true
}

func (c *EnumCache) miss() ([]*Info, int, bool) {
	c.stats.Misses++
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	return nil, 0, false
}

// touchLocked moves e to the back of its bucket, the SA-LRU analogue of
// InfoCache's MoveToFront: "most recently used" within a weight class.
func (c *EnumCache) touchLocked(e *enumEntry) {
	c.buckets[e.bucket].MoveToBack(e.bucketElem)
}

// Invalidate drops path, and — when maybeDir is true — every cached
// listing whose path is (or is under) path, since a directory rename or
// delete invalidates not just its own listing but everything nested
// under it.
func (c *EnumCache) Invalidate(path string, maybeDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.removeLocked(e)
	}
	if !maybeDir {
		return
	}
	prefix := path
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	for p, e := range c.entries {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			c.removeLocked(e)
		}
	}
}

// Remove drops exactly path, without the recursive prefix sweep
// Invalidate performs for directories.
func (c *EnumCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		c.removeLocked(e)
	}
}

// RemoveAll empties the cache.
func (c *EnumCache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*enumEntry)
	for i := range c.buckets {
		c.buckets[i].Init()
	}
	c.gc.Init()
	c.totalWeight = 0
}

// Disable suspends Insert/Set until a matching Enable call.
func (c *EnumCache) Disable() {
	c.mu.Lock()
	c.disableCount++
	c.mu.Unlock()
}

// Enable reverses one Disable call; unbalanced calls panic, the same
// programmer-error contract as InfoCache.Enable.
func (c *EnumCache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disableCount == 0 {
		panic("metacache: EnumCache.Enable called without a matching Disable")
	}
	c.disableCount--
}

// IsDisabled reports whether inserts are currently suspended.
func (c *EnumCache) IsDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disableCount > 0
}

// Count returns the number of committed entries currently cached.
func (c *EnumCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.committed {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *EnumCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evictLocked implements the redesigned SA-LRU victim selection: scan the
// head (oldest-touched) entry of every non-empty bucket, and evict
// whichever single entry maximizes count*(now-stamp) — a big, stale
// listing outweighs a small, fresh one even from a low bucket. The
// original C implementation left its "best candidate so far" pointer
// uninitialized and could dereference it when every bucket happened to
// be empty; this keeps the candidate nil until something is actually
// found, and simply does nothing if it never is.
func (c *EnumCache) evictLocked() {
	now := time.Now()
	for c.maxCount > 0 && c.totalWeight > c.maxCount {
		var victim *enumEntry
		var victimScore float64

		for _, b := range c.buckets {
			front := b.Front()
			if front == nil {
				continue
			}
			e := front.Value.(*enumEntry)
			score := float64(e.count) * now.Sub(e.stamp).Seconds()
			if victim == nil || score > victimScore {
				victim = e
				victimScore = score
			}
		}

		if victim == nil {
			return
		}
		c.removeLocked(victim)
		c.stats.Evictions++
		if c.metrics != nil {
			c.metrics.evictions.Inc()
		}
		c.logger.Debug("enum cache evicted entry", zap.String("path", victim.path), zap.Int("count", victim.count))
	}
}

// gcLocked mirrors InfoCache's amortized sweep over the GC list: once
// gcEvery has elapsed, every expired entry at the head is collected in
// turn until the head is fresh or the list is empty.
func (c *EnumCache) gcLocked(now time.Time) {
	if c.maxTime <= 0 || now.Sub(c.gcStamp) < c.gcEvery {
		return
	}
	c.gcStamp = now

	for {
		front := c.gc.Front()
		if front == nil {
			return
		}
		oldest := front.Value.(*enumEntry)
		if now.Sub(oldest.stamp) <= c.maxTime {
			return
		}
		c.removeLocked(oldest)
		c.stats.GCCollections++
		if c.metrics != nil {
			c.metrics.gcCollected.Inc()
		}
		c.logger.Debug("enum cache gc collected entry", zap.String("path", oldest.path))
	}
}

func (c *EnumCache) removeLocked(e *enumEntry) {
	if e.bucketElem != nil {
		c.buckets[e.bucket].Remove(e.bucketElem)
		c.totalWeight -= weightOf(e.count)
	}
	if e.gcElem != nil {
		c.gc.Remove(e.gcElem)
	}
	delete(c.entries, e.path)
}
