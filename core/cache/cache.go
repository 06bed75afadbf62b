// Package cache provides a process-local read-through cache with a fixed time-to-live.
//
// Entries expire lazily: a stale entry is deleted the first time it is read.
// There is no background sweeper and no size bound.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long an entry stays valid after it was stored.
const DefaultTTL = 5 * time.Minute

type (
	// FetchFunc computes the value of a missing key.
	FetchFunc func(ctx context.Context) (interface{}, error)

	Option func(*Cache)

	entry struct {
		value    interface{}
		storedAt time.Time
	}

	// Stats are the counters of a Cache since its creation.
	Stats struct {
		Hits    uint64 `json:"hits"`
		Misses  uint64 `json:"misses"`
		Expired uint64 `json:"expired"`
		Entries int    `json:"entries"`
	}

	Cache struct {
		mu      sync.Mutex
		entries map[string]entry
		ttl     time.Duration
		nowFunc func() time.Time
		stats   Stats
	}
)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used to stamp and expire entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.nowFunc = now
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Set stores value under key, replacing any previous entry.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.nowFunc()}
	c.mu.Unlock()
}

// Get returns the value stored under key if it is still fresh.
// A stale entry is deleted and reported as absent.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	// an entry aged exactly ttl is still fresh
	if c.nowFunc().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		c.stats.Expired++
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

// Invalidate removes key. No-op if absent.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateAll removes every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// GetOrFetch returns the fresh value stored under key, or calls fetch, stores its result and returns it.
// fetch errors are returned as is and nothing is stored.
// Concurrent misses on the same key each call fetch; the last one to finish wins.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (interface{}, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value)
	return value, nil
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}

// Fetch is the typed form of Cache.GetOrFetch.
// A cached value of another type than T is treated as a miss and replaced.
func Fetch[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if value, ok := c.Get(key); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Key builds a cache key from an entity tag and its identifying parameters, joined with ":".
func Key(entity string, parts ...string) string {
	if len(parts) == 0 {
		return entity
	}
	return entity + ":" + strings.Join(parts, ":")
}
