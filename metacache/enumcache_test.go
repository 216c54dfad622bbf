package metacache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listing(n int) []*Info {
	infos := make([]*Info, n)
	for i := range infos {
		infos[i] = NewInfo("f", "f", TypeRegular)
	}
	return infos
}

func TestEnumCacheTwoPhaseInsertSet(t *testing.T) {
	c := NewEnumCache(100, time.Minute)
	stamp := c.Insert("/dir")

	m := NewAttributeMatcher("standard::*")
	c.Set("/dir", listing(3), m, QueryFlagsNone, stamp, 3)

	infos, count, ok := c.Find("/dir", m, QueryFlagsNone)
	require.True(t, ok)
	require.Equal(t, 3, count)
	require.Len(t, infos, 3)
}

func TestEnumCacheSetIgnoredAfterStaleStamp(t *testing.T) {
	c := NewEnumCache(100, time.Minute)
	stamp := c.Insert("/dir")
	// A second Insert for the same path supersedes the first reservation.
	c.Insert("/dir")

	m := NewAttributeMatcher("*")
	c.Set("/dir", listing(1), m, QueryFlagsNone, stamp, 1)

	_, _, ok := c.Find("/dir", m, QueryFlagsNone)
	require.False(t, ok, "a Set against a superseded reservation must not commit")
}

func TestEnumCacheExactFlagMatch(t *testing.T) {
	c := NewEnumCache(100, time.Minute)
	m := NewAttributeMatcher("*")
	stamp := c.Insert("/dir")
	c.Set("/dir", listing(1), m, QueryFlagNoFollowSymlinks, stamp, 1)

	_, _, ok := c.Find("/dir", m, QueryFlagsNone)
	require.False(t, ok, "EnumCache requires exact flag equality, unlike InfoCache")

	_, _, ok = c.Find("/dir", m, QueryFlagNoFollowSymlinks)
	require.True(t, ok)
}

func TestEnumCacheInvalidateRecursesIntoChildren(t *testing.T) {
	c := NewEnumCache(100, time.Minute)
	m := NewAttributeMatcher("*")

	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/other"} {
		stamp := c.Insert(p)
		c.Set(p, listing(1), m, QueryFlagsNone, stamp, 1)
	}

	c.Invalidate("/a", true)

	_, _, aOK := c.Find("/a", m, QueryFlagsNone)
	_, _, abOK := c.Find("/a/b", m, QueryFlagsNone)
	_, _, abcOK := c.Find("/a/b/c", m, QueryFlagsNone)
	_, _, otherOK := c.Find("/other", m, QueryFlagsNone)

	require.False(t, aOK)
	require.False(t, abOK)
	require.False(t, abcOK)
	require.True(t, otherOK, "a sibling outside the invalidated prefix must survive")
}

func TestEnumCacheSALRUFavorsBigStaleOverSmallFresh(t *testing.T) {
	c := NewEnumCache(50, time.Hour)
	m := NewAttributeMatcher("*")

	bigStamp := c.Insert("/big")
	c.Set("/big", listing(40), m, QueryFlagsNone, bigStamp, 40)

	// Give /big a head start so it's strictly staler than /small below.
	time.Sleep(5 * time.Millisecond)

	smallStamp := c.Insert("/small")
	c.Set("/small", listing(2), m, QueryFlagsNone, smallStamp, 2)

	// Push totalWeight over maxCount so an eviction must happen.
	thirdStamp := c.Insert("/third")
	c.Set("/third", listing(20), m, QueryFlagsNone, thirdStamp, 20)

	_, _, bigOK := c.Find("/big", m, QueryFlagsNone)
	require.False(t, bigOK, "the large, staler listing should be evicted first under SA-LRU weighting")
}

func TestEnumCacheEvictionNoopWhenNoBucketHasACandidate(t *testing.T) {
	// Regression for the fixed nil-candidate bug: a cache over its weight
	// bound with every bucket empty must never panic when asked to evict.
	c := NewEnumCache(1, time.Minute)
	c.totalWeight = 2
	require.NotPanics(t, func() { c.evictLocked() })
}

func TestEnumCacheUnbalancedEnablePanics(t *testing.T) {
	c := NewEnumCache(10, time.Minute)
	require.Panics(t, func() { c.Enable() })
}
