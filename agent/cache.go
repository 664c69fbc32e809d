package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

// CacheStats is the cache section of an agent health report.
type CacheStats struct {
	Size       int         `json:"size"`
	Hits       int         `json:"hits"`
	Misses     int         `json:"misses"`
	HitRatio   float64     `json:"hit_ratio"`
	Policy     CachePolicy `json:"policy"`
	TTLSeconds float64     `json:"ttl_seconds"`
}

type cacheEntry struct {
	result   *core.Result
	storedAt time.Time
}

// Cache is a per-agent, content addressed result cache. It is safe for
// concurrent use. Eviction is lazy: expired entries stay in memory until
// ClearExpired runs, but are invisible to Get under time/hybrid policies.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int
	misses  int
	policy  CachePolicy
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates an empty cache.
func NewCache(policy CachePolicy, ttl time.Duration) *Cache {
	return &Cache{entries: map[string]cacheEntry{}, policy: policy, ttl: ttl, now: time.Now}
}

// CacheKey digests (query, table fingerprint, kwargs). kwargs are encoded as
// JSON, which sorts map keys, so key order never changes the digest.
func CacheKey(query string, table *dataset.Table, kwargs map[string]any) string {
	kw, err := json.Marshal(kwargs)
	if err != nil {
		kw = []byte(fmt.Sprintf("%v", kwargs))
	}
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(table.Fingerprint()))
	h.Write([]byte{0})
	h.Write(kw)
	return hex.EncodeToString(h.Sum(nil))
}

// SessionCacheKey scopes key to one session.
func SessionCacheKey(key, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) expires() bool { return c.policy == CacheTime || c.policy == CacheHybrid }

// Get looks up key and records a hit or miss. The returned result must be
// cloned before modification.
func (c *Cache) Get(key string) (*core.Result, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy == CacheNone {
		c.misses++
		return nil, time.Time{}, false
	}
	e, ok := c.entries[key]
	if ok && c.expires() && c.now().Sub(e.storedAt) > c.ttl {
		ok = false
	}
	if !ok {
		c.misses++
		return nil, time.Time{}, false
	}
	c.hits++
	return e.result, e.storedAt, true
}

// Set stores a result. Under CacheNone the write is dropped.
func (c *Cache) Set(key string, r *core.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy == CacheNone {
		return
	}
	c.entries[key] = cacheEntry{result: r, storedAt: c.now()}
}

// ClearExpired removes entries older than the TTL under time/hybrid policies
// and returns how many were removed.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.expires() {
		return 0
	}
	n := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
	c.hits, c.misses = 0, 0
}

// Reconfigure swaps policy and TTL, keeping existing entries.
func (c *Cache) Reconfigure(policy CachePolicy, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy, c.ttl = policy, ttl
	if policy == CacheNone {
		c.entries = map[string]cacheEntry{}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CacheStats{
		Size:       len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
		Policy:     c.policy,
		TTLSeconds: c.ttl.Seconds(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	return s
}
