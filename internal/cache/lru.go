package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache whose entries also expire after a TTL.
// Delete bumps a per-key version so that a load started before the delete
// cannot store its stale result afterwards (see GetOrLoad).
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	maxSize  int
	ttl      time.Duration
	now      func() time.Time
	items    map[K]*list.Element
	lru      *list.List
	versions map[K]uint64
}

type cacheItem[K comparable, V any] struct {
	key       K
	data      V
	expiresAt time.Time
}

type Option func(*lruOptions)

type lruOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *lruOptions) { o.now = now }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[K comparable, V any](maxSize int, ttl time.Duration, opts ...Option) *LRUCache[K, V] {
	o := lruOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[K, V]{
		maxSize:  maxSize,
		ttl:      ttl,
		now:      o.now,
		items:    make(map[K]*list.Element),
		lru:      list.New(),
		versions: make(map[K]uint64),
	}
}

func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*cacheItem[K, V])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *LRUCache[K, V]) Set(key K, data V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, data)
}

// Version returns the current version of key.
func (c *LRUCache[K, V]) Version(key K) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// SetIfVersion stores data only if key was not deleted since version was read.
func (c *LRUCache[K, V]) SetIfVersion(key K, data V, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key] != version {
		return false
	}
	c.setLocked(key, data)
	return true
}

func (c *LRUCache[K, V]) setLocked(key K, data V) {
	item := &cacheItem[K, V]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *LRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[key]++
	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[K, V])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[K, V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*cacheItem[K, V]).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
