package locale

import (
	"container/list"
	"sync"
	"time"
)

// BundleCache is a capacity-bounded LRU with per-entry TTL sitting in front
// of the disk loader. Expired entries count as misses and are evicted when
// touched; capacity overflow evicts the least recently used locale.
type BundleCache struct {
	loader   *Loader
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	hits    uint64
	misses  uint64
}

type cacheEntry struct {
	locale   string
	bundle   *Bundle
	loadedAt time.Time
}

func NewBundleCache(loader *Loader, capacity int, ttl time.Duration) *BundleCache {
	if capacity < 1 {
		capacity = 1
	}
	return &BundleCache{
		loader:   loader,
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached bundle for code, loading it from disk on a miss.
func (c *BundleCache) Get(code string) (*Bundle, error) {
	c.mu.Lock()
	if el, ok := c.entries[code]; ok {
		ent := el.Value.(*cacheEntry)
		if c.now().Sub(ent.loadedAt) < c.ttl {
			c.order.MoveToFront(el)
			c.hits++
			b := ent.bundle
			c.mu.Unlock()
			return b, nil
		}
		c.order.Remove(el)
		delete(c.entries, code)
	}
	c.misses++
	c.mu.Unlock()

	b, err := c.loader.Load(code)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.insert(code, b)
	c.mu.Unlock()
	return b, nil
}

// insert assumes c.mu is held.
func (c *BundleCache) insert(code string, b *Bundle) {
	if el, ok := c.entries[code]; ok {
		el.Value.(*cacheEntry).bundle = b
		el.Value.(*cacheEntry).loadedAt = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{locale: code, bundle: b, loadedAt: c.now()})
	c.entries[code] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).locale)
	}
}

// Stats reports hit/miss counters and the current entry count.
func (c *BundleCache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.order.Len()
}
