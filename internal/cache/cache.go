// Package cache provides the query-result cache shared by the
// paginated stores and the auxiliary lookup queries.
//
// Entries are keyed by fetch fingerprint (resource + filters + window)
// so invalidation can target a whole resource by key prefix without
// any cross-view coupling.
package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache is a thread-safe LRU of fetched pages keyed by
// fingerprint, with a per-cache TTL and explicit prefix invalidation.
type QueryCache[V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry[V]]
	ttl   time.Duration
	now   func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New creates a cache holding at most maxItems entries. Entries older
// than ttl are treated as absent; ttl <= 0 keeps entries until
// invalidated or evicted.
func New[V any](maxItems int, ttl time.Duration) (*QueryCache[V], error) {
	c, err := lru.New[string, entry[V]](maxItems)
	if err != nil {
		return nil, err
	}
	return &QueryCache[V]{cache: c, ttl: ttl, now: time.Now}, nil
}

// Get retrieves a live entry by fingerprint.
func (c *QueryCache[V]) Get(fingerprint string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(fingerprint)
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.cache.Remove(fingerprint)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value under its fingerprint.
func (c *QueryCache[V]) Put(fingerprint string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(fingerprint, entry[V]{value: value, storedAt: c.now()})
}

// InvalidatePrefix removes every entry whose fingerprint starts with
// the given prefix and returns how many were dropped.
func (c *QueryCache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
			dropped++
		}
	}
	return dropped
}

// Len returns the current number of live entries.
func (c *QueryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
