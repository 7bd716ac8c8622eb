// Package robots implements robots.txt fetching, caching, and rule
// evaluation for the HTTP Client's politeness layer.
package robots

import (
	"sync"
	"time"
)

// Cache stores fetched robots.txt rule sets keyed by "scheme://host",
// expiring entries after the configured TTL. Robots fetch failures degrade
// to "allow" rather than blocking ingestion, so the cache never needs to
// remember failures — only successfully parsed rule sets.
type Cache interface {
	Get(key string) (*RuleSet, bool)
	Put(key string, rules *RuleSet)
}

// TTLCache is an in-memory Cache with a fixed time-to-live per entry,
// matching the 24h cache window the HTTP Client contract specifies.
type TTLCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry
	now     func() time.Time
}

type ttlEntry struct {
	rules     *RuleSet
	expiresAt time.Time
}

// NewTTLCache builds a TTLCache with the given entry lifetime.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]ttlEntry),
		now:     time.Now,
	}
}

func (c *TTLCache) Get(key string) (*RuleSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.rules, true
}

func (c *TTLCache) Put(key string, rules *RuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry{rules: rules, expiresAt: c.now().Add(c.ttl)}
}
