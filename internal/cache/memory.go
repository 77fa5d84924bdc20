package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// item is what the insertion-order list elements hold.
type item struct {
	key         string
	entry       *Entry
	expiration  int64 // UnixNano; 0 means no expiry
	lastAccess  int64
	accessCount int64
}

func (i *item) expired(now int64) bool {
	return i.expiration > 0 && now > i.expiration
}

// MemoryCache is the first tier: a bounded map with insertion-order
// eviction. Deliberately not an LRU: access never reorders entries, so
// inserting beyond capacity always evicts the oldest-inserted entry.
//
// Expiration is dual: lazy on Get, plus an optional janitor goroutine
// started with StartJanitor.
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string]*list.Element
	order    *list.List // front = oldest inserted
	capacity int
	ttl      time.Duration

	counters counters
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a memory tier holding at most capacity entries,
// each expiring after ttl (0 disables expiry).
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryCache{
		data:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.data[key]
	if !ok {
		c.counters.misses.Add(1)
		return nil, false
	}

	it := elem.Value.(*item)
	now := time.Now().UnixNano()
	if it.expired(now) {
		c.removeElement(elem)
		c.counters.misses.Add(1)
		return nil, false
	}

	it.lastAccess = now
	it.accessCount++
	c.counters.hits.Add(1)
	return it.entry.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) bool {
	if entry == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expiration int64
	if c.ttl > 0 {
		expiration = now.Add(c.ttl).UnixNano()
	}

	if elem, ok := c.data[key]; ok {
		// Refresh in place; insertion position is kept.
		it := elem.Value.(*item)
		it.entry = entry.Clone()
		it.expiration = expiration
		c.counters.sets.Add(1)
		return true
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	it := &item{
		key:        key,
		entry:      entry.Clone(),
		expiration: expiration,
		lastAccess: now.UnixNano(),
	}
	c.data[key] = c.order.PushBack(it)
	c.counters.sets.Add(1)
	return true
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.data[key]; ok {
		c.removeElement(elem)
	}
}

// Len reports the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	entries := int64(c.order.Len())
	c.mu.RUnlock()
	return c.counters.snapshot(entries)
}

// StartJanitor launches the background sweep that removes expired entries
// every interval. It is a no-op for non-positive intervals.
func (c *MemoryCache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.deleteExpired()
			case <-c.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *MemoryCache) deleteExpired() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if elem.Value.(*item).expired(now) {
			c.removeElement(elem)
		}
	}
}

func (c *MemoryCache) evictOldest() {
	if elem := c.order.Front(); elem != nil {
		c.removeElement(elem)
		c.counters.evictions.Add(1)
	}
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.data, elem.Value.(*item).key)
}
