// Package cache is an advisory TTL cache for query results. It never serves
// as a source of truth: every entry can vanish at any time and callers must
// fall back to the store. Writers invalidate by key or by prefix.
package cache

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/farmkeeper/farmkeeper/internal/logging"
)

const (
	defaultTTL      = 24 * time.Hour
	cleanupInterval = 10 * time.Minute
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Cache wraps an expiring in-memory store with hit/miss accounting.
type Cache struct {
	c   *gocache.Cache
	ttl time.Duration
	log logging.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a cache whose entries default to ttl; ttl <= 0 applies the
// 24 hour default.
func New(ttl time.Duration, log logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Cache{
		c:   gocache.New(ttl, cleanupInterval),
		ttl: ttl,
		log: log,
	}
}

// Key builds a canonical cache key: the operation name plus its parameters
// in sorted order, so equivalent queries share one entry regardless of
// argument order.
func Key(op string, params ...string) string {
	sort.Strings(params)
	if len(params) == 0 {
		return op
	}
	return op + "|" + strings.Join(params, "|")
}

// Get returns the cached value for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.c.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores v under key. ttl <= 0 applies the cache default.
func (c *Cache) Put(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.c.Set(key, v, ttl)
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	c.c.Delete(key)
}

// InvalidatePrefix drops every key starting with prefix. Mutations use it to
// clear all cached reads of one entity kind at once.
func (c *Cache) InvalidatePrefix(prefix string) {
	for key := range c.c.Items() {
		if strings.HasPrefix(key, prefix) {
			c.c.Delete(key)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.c.Flush()
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.c.ItemCount(),
	}
}
