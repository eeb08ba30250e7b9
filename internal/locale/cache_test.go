package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, capacity int, ttl time.Duration) (*BundleCache, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	writeBundleFile(t, dir, "en", `{"hero":{"title":"Welcome"}}`)
	writeBundleFile(t, dir, "zh", `{"hero":{"title":"欢迎"}}`)

	c := NewBundleCache(NewLoader(dir), capacity, ttl)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestBundleCache_HitAfterLoad(t *testing.T) {
	c, _ := newTestCache(t, 8, time.Hour)

	b1, err := c.Get("en")
	require.NoError(t, err)

	b2, err := c.Get("en")
	require.NoError(t, err)
	assert.Same(t, b1, b2, "second get should be served from cache")

	hits, misses, size := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, size)
}

func TestBundleCache_TTLExpiry(t *testing.T) {
	c, clock := newTestCache(t, 8, time.Hour)

	b1, err := c.Get("en")
	require.NoError(t, err)

	// Just inside the TTL: still a hit.
	*clock = clock.Add(59 * time.Minute)
	b2, err := c.Get("en")
	require.NoError(t, err)
	assert.Same(t, b1, b2)

	// Past the TTL: entry is stale, reloaded from disk.
	*clock = clock.Add(2 * time.Minute)
	b3, err := c.Get("en")
	require.NoError(t, err)
	assert.NotSame(t, b1, b3)

	hits, misses, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestBundleCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(t, 1, time.Hour)

	_, err := c.Get("en")
	require.NoError(t, err)

	// Loading zh evicts en (capacity 1).
	_, err = c.Get("zh")
	require.NoError(t, err)

	_, _, size := c.Stats()
	assert.Equal(t, 1, size)

	// en must reload, counting another miss.
	_, err = c.Get("en")
	require.NoError(t, err)

	hits, misses, _ := c.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(3), misses)
}

func TestBundleCache_RecentUseBlocksEviction(t *testing.T) {
	dir := t.TempDir()
	writeBundleFile(t, dir, "en", `{"a":"1"}`)
	writeBundleFile(t, dir, "zh", `{"a":"2"}`)

	c := NewBundleCache(NewLoader(dir), 2, time.Hour)

	en1, err := c.Get("en")
	require.NoError(t, err)
	_, err = c.Get("zh")
	require.NoError(t, err)

	// Touch en so zh becomes the LRU entry. With capacity 2 and only two
	// supported locales nothing can actually overflow, so verify the
	// recency bookkeeping through hit counting instead.
	en2, err := c.Get("en")
	require.NoError(t, err)
	assert.Same(t, en1, en2)

	hits, _, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestBundleCache_LoadErrorNotCached(t *testing.T) {
	dir := t.TempDir()
	writeBundleFile(t, dir, "en", `{"a":"1"}`)
	// zh.json deliberately absent.

	c := NewBundleCache(NewLoader(dir), 8, time.Hour)

	_, err := c.Get("zh")
	require.Error(t, err)

	_, _, size := c.Stats()
	assert.Equal(t, 0, size, "failed loads must not occupy cache slots")

	// The error repeats on the next call rather than serving a phantom entry.
	_, err = c.Get("zh")
	assert.Error(t, err)
}

func TestNewBundleCache_MinimumCapacity(t *testing.T) {
	c := NewBundleCache(NewLoader(t.TempDir()), 0, time.Hour)
	assert.Equal(t, 1, c.capacity)
}
