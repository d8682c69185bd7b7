package intel

import (
	"sync"
	"time"

	"github.com/mbd888/walletscope/internal/metrics"
)

const (
	// DefaultCacheTTL is how long a cached verdict stays fresh.
	DefaultCacheTTL = time.Hour
	// DefaultCacheSize bounds the number of cached verdicts.
	DefaultCacheSize = 10000
)

type cacheEntry struct {
	verdict *Verdict
	written time.Time
}

// Cache is a TTL-bounded verdict cache. Expired entries are dropped lazily
// on read. When full, the entry with the oldest write time is evicted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time // overridable for tests
}

// NewCache creates a cache with the given TTL and size bound.
// Non-positive arguments fall back to the defaults.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached verdict for address, or nil on a miss.
// A stale entry counts as a miss and is removed.
func (c *Cache) Get(address string) *Verdict {
	c.mu.RLock()
	e, ok := c.entries[address]
	c.mu.RUnlock()

	if !ok {
		metrics.IntelCacheMisses.Inc()
		return nil
	}
	if c.now().Sub(e.written) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := c.entries[address]; still && cur.written == e.written {
			delete(c.entries, address)
		}
		c.mu.Unlock()
		metrics.IntelCacheMisses.Inc()
		return nil
	}

	metrics.IntelCacheHits.Inc()
	return e.verdict
}

// Put stores a verdict, evicting the oldest-written entry when full.
func (c *Cache) Put(address string, v *Verdict) {
	if v == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[address]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[address] = cacheEntry{verdict: v, written: c.now()}
}

// Len returns the number of cached entries, including any not yet lazily expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldestLocked removes the entry with the oldest write time.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.written.Before(oldest) {
			oldestKey, oldest = k, e.written
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
