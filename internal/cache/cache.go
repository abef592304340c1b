// Package cache provides the in-memory memoization cache used by every
// pipeline stage. Each component owns its own instance.
package cache

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL is used when no TTL option is given
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries is the hard size cap when none is given
	DefaultMaxEntries = 100
)

// Clock returns the current time
type Clock func() time.Time

// Observer receives cache events, keyed by cache name
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEvicted(cache string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)          {}
func (nopObserver) CacheMiss(string)         {}
func (nopObserver) CacheEvicted(string, int) {}

type options struct {
	ttl        time.Duration
	maxEntries int
	clock      Clock
	observer   Observer
}

// Option configures a Cache
type Option func(*options)

// WithTTL sets the default time-to-live of new entries
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxEntries sets the hard cap on the number of entries
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithClock replaces the wall clock (tests use a manual clock)
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver reports hits, misses and evictions
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type entry[V any] struct {
	value     V
	timestamp time.Time
	expires   time.Time
}

// Cache is a TTL cache with a size cap. Expired entries are evicted lazily on
// access; when the cap is reached the oldest entries by creation time go
// first. There is no background sweeper.
type Cache[V any] struct {
	name    string
	opts    options
	mu      sync.Mutex
	entries map[string]entry[V]
}

// New creates a named cache
func New[V any](name string, opts ...Option) *Cache[V] {
	o := options{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		clock:      time.Now,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		name:    name,
		opts:    o,
		entries: make(map[string]entry[V]),
	}
}

// Name returns the cache name
func (c *Cache[V]) Name() string {
	return c.name
}

// TTL returns the default entry lifetime
func (c *Cache[V]) TTL() time.Duration {
	return c.opts.ttl
}

// Get returns a live entry
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.clock()
	e, ok := c.entries[key]
	if ok && now.Before(e.expires) {
		c.opts.observer.CacheHit(c.name)
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
		c.opts.observer.CacheEvicted(c.name, 1)
	}
	c.opts.observer.CacheMiss(c.name)

	var zero V
	return zero, false
}

// Put stores value with the default TTL
func (c *Cache[V]) Put(key string, value V) {
	c.PutWithTTL(key, value, c.opts.ttl)
}

// PutWithTTL stores value with an explicit TTL
func (c *Cache[V]) PutWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.clock()
	if _, exists := c.entries[key]; !exists {
		c.evictLocked(now, c.opts.maxEntries-1)
	}
	c.entries[key] = entry[V]{
		value:     value,
		timestamp: now,
		expires:   now.Add(ttl),
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Errors are not cached.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}

// Evict removes expired entries and trims the cache to its cap
func (c *Cache[V]) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(c.opts.clock(), c.opts.maxEntries)
}

// evictLocked drops expired entries, then the oldest entries until at most
// limit remain. Caller holds the lock.
func (c *Cache[V]) evictLocked(now time.Time, limit int) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}

	if limit < 0 {
		limit = 0
	}
	if over := len(c.entries) - limit; over > 0 {
		keys := make([]string, 0, len(c.entries))
		for k := range c.entries {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return c.entries[keys[i]].timestamp.Before(c.entries[keys[j]].timestamp)
		})
		for _, k := range keys[:over] {
			delete(c.entries, k)
			removed++
		}
	}

	if removed > 0 {
		c.opts.observer.CacheEvicted(c.name, removed)
	}
	return removed
}

// Len returns the number of stored entries, including not yet evicted ones
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes every entry
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Stats describes a cache for the debug dump
type Stats struct {
	Name       string
	Entries    int
	Live       int
	MaxEntries int
	TTL        time.Duration
}

// Stats returns the current size information
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.clock()
	live := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			live++
		}
	}
	return Stats{
		Name:       c.name,
		Entries:    len(c.entries),
		Live:       live,
		MaxEntries: c.opts.maxEntries,
		TTL:        c.opts.ttl,
	}
}

// StatsProvider is implemented by every Cache instantiation
type StatsProvider interface {
	Stats() Stats
}
