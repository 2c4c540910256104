package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its creation timestamp.
type entry[V any] struct {
	value     V
	createdAt time.Time
}

// Cache is a small in-memory cache of the latest run and report.
// It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.RWMutex
	store      map[string]*entry[V]
	maxEntries int
	ttl        time.Duration

	stop chan struct{}
	once sync.Once
}

// New creates a Cache holding at most maxEntries values. A background
// goroutine evicts entries older than ttl every ttl/12 until Close.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache[V]{
		store:      make(map[string]*entry[V]),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Get returns the value under key and when it was stored, provided it is
// younger than maxAge. maxAge <= 0 disables the age check.
func (c *Cache[V]) Get(key string, maxAge time.Duration) (V, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, time.Time{}, false
	}
	if maxAge > 0 && time.Since(e.createdAt) > maxAge {
		return zero, time.Time{}, false
	}
	return e.value, e.createdAt, true
}

// Set stores a value. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Cache[V]) Set(key string, v V) {
	c.SetAt(key, v, time.Now())
}

// SetAt stores a value with an explicit creation time, used when a value
// is restored from a slower tier.
func (c *Cache[V]) SetAt(key string, v V, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry[V]{value: v, createdAt: createdAt}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.ttl / 12)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired(time.Now())
		}
	}
}

func (c *Cache[V]) evictExpired(now time.Time) {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
