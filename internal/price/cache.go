package price

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// entry is a cached unit price. Entries are never removed; stale ones are
// simply overwritten by the next fetch.
type entry struct {
	price     decimal.Decimal
	missing   bool
	fetchedAt time.Time
}

// Cache is a process-local TTL cache of unit prices keyed by asset id.
type Cache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]entry
}

// NewCache creates a cache whose entries are fresh for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// get returns the cached entry for assetID if now - fetchedAt < ttl.
func (c *Cache) get(assetID string, now time.Time) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[assetID]
	if !ok || now.Sub(e.fetchedAt) >= c.ttl {
		return entry{}, false
	}
	return e, true
}

// put stores a freshly fetched price.
func (c *Cache) put(assetID string, e entry) {
	c.mu.Lock()
	c.entries[assetID] = e
	c.mu.Unlock()
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
