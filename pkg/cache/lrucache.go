package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// InMemoryLRUCache keeps at most capacity values and evicts the least
// recently used one when full. A miss is loaded through the fallback
// Fetcher, and concurrent misses for one key share a single load. Failed
// loads are not cached, so the next Fetch tries again.
type InMemoryLRUCache[K comparable, V any] struct {
	capacity int
	fallback Fetcher[K, V]
	loads    singleflight.Group

	mu      sync.Mutex
	recency *list.List // front is most recent
	entries map[K]*list.Element
}

// NewInMemoryLRUCache creates a cache for capacity values. fallback may be
// nil, in which case misses return ErrNotFound.
func NewInMemoryLRUCache[K comparable, V any](capacity int, fallback Fetcher[K, V]) (*InMemoryLRUCache[K, V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("lru capacity must be at least 1, got %d", capacity)
	}
	return &InMemoryLRUCache[K, V]{
		capacity: capacity,
		fallback: fallback,
		recency:  list.New(),
		entries:  make(map[K]*list.Element, capacity),
	}, nil
}

// Fetch returns the cached value for key or loads it through the fallback.
func (c *InMemoryLRUCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}
	if c.fallback == nil {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}

	loaded, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		// Another caller may have finished the load while we queued.
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := c.fallback.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return loaded.(V), nil
}

// Peek returns a cached value without loading it. A hit counts as a use.
func (c *InMemoryLRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.recency.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put stores value, evicting the least recently used entry when over capacity.
func (c *InMemoryLRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		c.recency.MoveToFront(el)
		return
	}
	c.entries[key] = c.recency.PushFront(&lruEntry[K, V]{key: key, value: value})
	for c.recency.Len() > c.capacity {
		c.removeLocked(c.recency.Back())
	}
}

// Len reports the number of cached values.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Invalidate drops key so the next Fetch loads it again.
func (c *InMemoryLRUCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

func (c *InMemoryLRUCache[K, V]) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	entry := c.recency.Remove(el).(*lruEntry[K, V])
	delete(c.entries, entry.key)
}

// Close closes the fallback.
func (c *InMemoryLRUCache[K, V]) Close() error {
	if c.fallback == nil {
		return nil
	}
	return c.fallback.Close()
}
