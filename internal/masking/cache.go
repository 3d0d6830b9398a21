package masking

import (
	"sync"
	"time"
)

// ruleCache memoizes resolved rule sets per (tenant, role) key. Each key
// carries its own expiry so one miss never resets freshness for other keys.
// Entries are only ever dropped by expiry or Reset; rule edits may be served
// stale for up to the TTL.
type ruleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rules     []Rule
	expiresAt time.Time
}

func newRuleCache(ttl time.Duration) *ruleCache {
	return &ruleCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ruleCache) get(key string, now time.Time) ([]Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		return nil, false
	}
	return entry.rules, true
}

func (c *ruleCache) put(key string, rules []Rule, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rules: rules, expiresAt: now.Add(c.ttl)}
}

// reset drops every entry; used on config reload.
func (c *ruleCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
