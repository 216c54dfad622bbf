package metacache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInfoCacheInsertFind(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	info := NewInfo("report.txt", "report.txt", TypeRegular)
	info.SetSize(128)

	matcher := NewAttributeMatcher("standard::*")
	c.Insert("/a/report.txt", info, matcher, QueryFlagsNone)

	got, ok := c.Find("/a/report.txt", NewAttributeMatcher("standard::size"), QueryFlagsNone)
	require.True(t, ok)
	require.Equal(t, int64(128), got.Size())
}

func TestInfoCacheMissOnNarrowerStoredMatcher(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	info := NewInfo("f", "f", TypeRegular)
	c.Insert("/f", info, NewAttributeMatcher("standard::size"), QueryFlagsNone)

	_, ok := c.Find("/f", NewAttributeMatcher("unix::mode"), QueryFlagsNone)
	require.False(t, ok, "request for an attribute the stored entry never covered must miss")
}

func TestInfoCacheTTLExpiry(t *testing.T) {
	c := NewInfoCache(10, 10*time.Millisecond)
	info := NewInfo("f", "f", TypeRegular)
	c.Insert("/f", info, NewAttributeMatcher("*"), QueryFlagsNone)

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Find("/f", NewAttributeMatcher("*"), QueryFlagsNone)
	require.False(t, ok)
}

func TestInfoCacheLRUEviction(t *testing.T) {
	c := NewInfoCache(2, time.Minute)
	m := NewAttributeMatcher("*")
	c.Insert("/a", NewInfo("a", "a", TypeRegular), m, QueryFlagsNone)
	c.Insert("/b", NewInfo("b", "b", TypeRegular), m, QueryFlagsNone)

	// Touch /a so /b becomes the least recently used entry.
	_, _ = c.Find("/a", m, QueryFlagsNone)
	c.Insert("/c", NewInfo("c", "c", TypeRegular), m, QueryFlagsNone)

	_, aOK := c.Find("/a", m, QueryFlagsNone)
	_, bOK := c.Find("/b", m, QueryFlagsNone)
	_, cOK := c.Find("/c", m, QueryFlagsNone)

	require.True(t, aOK)
	require.False(t, bOK, "/b should have been evicted as the LRU victim")
	require.True(t, cOK)
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestInfoCacheNoFollowSymlinksLeniency(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	info := NewInfo("link", "link", TypeRegular)
	m := NewAttributeMatcher("standard::*")

	// Cached without following symlinks, on a non-symlink entry.
	c.Insert("/link", info, m, QueryFlagNoFollowSymlinks)

	got, ok := c.Find("/link", m, QueryFlagsNone)
	require.True(t, ok, "a non-symlink no-follow entry should satisfy a followed lookup")
	require.False(t, got.IsSymlink())
}

func TestInfoCacheNoFollowSymlinksStrictOnActualSymlink(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	info := NewInfo("link", "link", TypeSymbolicLink)
	m := NewAttributeMatcher("standard::*")

	c.Insert("/link", info, m, QueryFlagNoFollowSymlinks)

	_, ok := c.Find("/link", m, QueryFlagsNone)
	require.False(t, ok, "an actual symlink cached no-follow must not satisfy a followed lookup")
}

func TestInfoCacheDisableEnable(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	m := NewAttributeMatcher("*")

	c.Disable()
	c.Insert("/a", NewInfo("a", "a", TypeRegular), m, QueryFlagsNone)
	_, ok := c.Find("/a", m, QueryFlagsNone)
	require.False(t, ok, "insert while disabled must be a no-op")

	c.Enable()
	c.Insert("/a", NewInfo("a", "a", TypeRegular), m, QueryFlagsNone)
	_, ok = c.Find("/a", m, QueryFlagsNone)
	require.True(t, ok)
}

func TestInfoCacheUnbalancedEnablePanics(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	require.Panics(t, func() { c.Enable() })
}

func TestInfoCacheInvalidate(t *testing.T) {
	c := NewInfoCache(10, time.Minute)
	m := NewAttributeMatcher("*")
	c.Insert("/a", NewInfo("a", "a", TypeRegular), m, QueryFlagsNone)
	c.Invalidate("/a", false)

	_, ok := c.Find("/a", m, QueryFlagsNone)
	require.False(t, ok)
}
