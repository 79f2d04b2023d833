package cache

import (
	"container/list"
	"sync"
)

// Stats is a point-in-time snapshot of one cache's counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

type lruEntry struct {
	key   string
	value any
}

// lruCache is a mutex-guarded LRU cache backed by a hash map plus a
// doubly-linked recency list, giving O(1) get, set and evict. Concurrent file
// workers share one instance, so every operation takes the lock.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

func newLRU(capacity int) *lruCache {
	if capacity < 0 {
		capacity = 0
	}
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// get returns the cached value and refreshes its recency on a hit.
func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.ll.MoveToFront(elem)
	return elem.Value.(*lruEntry).value, true
}

// set inserts or updates a key. On a full cache the single least-recently-used
// entry is evicted first. A zero-capacity cache accepts set as a no-op.
func (c *lruCache) set(key string, value any) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry).value = value
		c.ll.MoveToFront(elem)
		return
	}

	if c.ll.Len() >= c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
			c.evictions++
		}
	}

	c.items[key] = c.ll.PushFront(&lruEntry{key: key, value: value})
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *lruCache) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.ll.Len(),
		Capacity:  c.capacity,
	}
}
