// Package lru provides a bounded cache with least-recently-used eviction.
//
// The cache is not synchronized; callers that share an instance across
// goroutines must serialize access themselves.
package lru

import (
	"container/list"
	"fmt"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a fixed-capacity map with LRU eviction. Get and Put refresh an
// entry's recency; Contains and Peek do not. Warm inserts bypass the capacity
// bound entirely, for pre-loading small data sets in full.
type Cache[K comparable, V any] struct {
	capacity int
	order    *list.List // front = most recently used
	items    map[K]*list.Element
	onEvict  func(K, V)
}

// New creates a cache holding at most capacity entries. It panics if capacity
// is not positive.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		panic(fmt.Sprintf("lru: capacity must be positive, got %d", capacity))
	}
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

// OnEvict registers a callback invoked with each evicted key and value.
// Overwriting an existing key does not count as an eviction.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.onEvict = fn
}

// Get returns the value stored under key and marks the entry as most
// recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*entry[K, V]).value, true
}

// Peek returns the value stored under key without touching recency order.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Contains reports whether key is present without touching recency order.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Put stores value under key as the most recently used entry. If the key is
// new and the cache is full, the least recently used entry is evicted first.
// Entries that were never accessed age out in insertion order.
func (c *Cache[K, V]) Put(key K, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// Warm stores value under key without evicting anything, even when the cache
// is already at capacity. Warmed entries participate in recency order and
// later evictions like any other entry.
func (c *Cache[K, V]) Warm(key K, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// Len returns the number of entries currently stored.
func (c *Cache[K, V]) Len() int {
	return c.order.Len()
}

// Cap returns the configured capacity.
func (c *Cache[K, V]) Cap() int {
	return c.capacity
}

func (c *Cache[K, V]) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
