package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"PDUFAScanner/internal/ports"
)

// DefaultTTL applies when neither the constructor nor Set supplies one.
const DefaultTTL = 5 * time.Minute

// QueryCache is an in-process TTL cache for query results.
type QueryCache struct {
	items *gocache.Cache

	mu  sync.Mutex
	gen uint64
}

var _ ports.Cache = (*QueryCache)(nil)

// New builds a cache with the given default TTL and janitor interval.
// A non-positive cleanup interval disables the janitor.
func New(ttl, cleanup time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanup < 0 {
		cleanup = 0
	}
	return &QueryCache{items: gocache.New(ttl, cleanup)}
}

// Get returns a live entry.
func (c *QueryCache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

// Set stores value; ttl <= 0 uses the default TTL.
func (c *QueryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, value, ttl)
}

// Generation counts Clear calls.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfGeneration is Set guarded by gen; it reports whether value was stored.
func (c *QueryCache) SetIfGeneration(gen uint64, key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.Set(key, value, ttl)
	return true
}

// Clear drops every entry and starts a new generation.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items.Flush()
}

// Len counts stored entries, including expired ones the janitor has not
// collected yet.
func (c *QueryCache) Len() int {
	return c.items.ItemCount()
}
