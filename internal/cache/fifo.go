// Package cache provides a bounded memoization layer for computed dashboard results.
package cache

import (
	"container/list"
	"sync"
)

// FIFO is a bounded cache that evicts the oldest inserted entry when full.
// Reading an entry does not refresh its position; overwriting a key keeps
// its original insertion slot. A capacity of zero or less disables caching.
type FIFO[V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	onEvict  func(key string)
}

type entry[V any] struct {
	key   string
	value V
}

// NewFIFO constructs a cache holding at most capacity entries.
func NewFIFO[V any](capacity int) *FIFO[V] {
	return &FIFO[V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// OnEvict registers a callback invoked (under the cache lock) for each evicted key.
func (c *FIFO[V]) OnEvict(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the cached value for key.
func (c *FIFO[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, evicting the oldest entries beyond capacity.
func (c *FIFO[V]) Put(key string, value V) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		return
	}
	c.items[key] = c.order.PushBack(&entry[V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		e := oldest.Value.(*entry[V])
		c.order.Remove(oldest)
		delete(c.items, e.key)
		if c.onEvict != nil {
			c.onEvict(e.key)
		}
	}
}

// Len reports the number of cached entries.
func (c *FIFO[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry.
func (c *FIFO[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}
