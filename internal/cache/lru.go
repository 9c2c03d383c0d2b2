package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a thread-safe least-recently-used cache. Each entry has a cost
// (1 by default); the least recently used entries are evicted once the
// total cost exceeds the capacity.
type LRU[K comparable, V any] struct {
	capacity int64
	size     int64
	cost     func(V) int64

	items    map[K]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewLRU creates an LRU holding at most capacity entries.
func NewLRU[K comparable, V any](capacity int64) *LRU[K, V] {
	return NewWeightedLRU[K, V](capacity, nil)
}

// NewWeightedLRU creates an LRU whose entries weigh cost(value).
func NewWeightedLRU[K comparable, V any](capacity int64, cost func(V) int64) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: capacity,
		cost:     cost,
		items:    make(map[K]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

// Get retrieves a value and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Put stores a value, evicting old entries as needed.
func (c *LRU[K, V]) Put(key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := int64(1)
	if c.cost != nil {
		cost = c.cost(value)
	}
	if cost > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		c.size += cost - entry.cost
		entry.value = value
		entry.cost = cost
		c.eviction.MoveToFront(elem)
	} else {
		c.items[key] = c.eviction.PushFront(&lruEntry[K, V]{key: key, value: value, cost: cost})
		c.size += cost
	}

	for c.size > c.capacity && c.eviction.Len() > 1 {
		c.evictOldest()
	}
	return nil
}

// Delete removes an entry.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeleteFunc removes every entry whose key satisfies del.
func (c *LRU[K, V]) DeleteFunc(del func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if del(key) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.eviction.Init()
	c.size = 0
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = int64(len(c.items))
	stats.computeHitRate()
	return stats
}

// evictOldest must be called with the lock held.
func (c *LRU[K, V]) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}
}

// removeElement must be called with the lock held.
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	c.size -= entry.cost
}
