package dataguard

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheTTL bounds how long a computed permission set may be served
// without re-resolving. A store write that is not followed by an Invalidate
// call can be observed stale for at most this long.
const DefaultCacheTTL = 5 * time.Minute

// PermissionCache memoizes computed effective permission sets per user.
// Implementations must be safe for concurrent use; entries for different
// users are independent and need no cross-user coordination.
type PermissionCache interface {
	Get(userID string) (PermissionSet, bool)
	Put(userID string, perms PermissionSet)
	Invalidate(userID string)
	InvalidateAll()
}

type cacheEntry struct {
	perms     PermissionSet
	createdAt time.Time
}

// MemoryPermissionCache is the default cache: a mutex-guarded map with lazy
// TTL expiry. There is no background eviction; an entry past its TTL is
// treated as a miss and removed on the read that finds it.
type MemoryPermissionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func NewMemoryPermissionCache(ttl time.Duration) *MemoryPermissionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryPermissionCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *MemoryPermissionCache) Get(userID string) (PermissionSet, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		// re-check under the write lock; a Put may have refreshed the entry
		if cur, still := c.entries[userID]; still && cur.createdAt.Equal(entry.createdAt) {
			delete(c.entries, userID)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.perms, true
}

func (c *MemoryPermissionCache) Put(userID string, perms PermissionSet) {
	c.mu.Lock()
	c.entries[userID] = cacheEntry{perms: perms, createdAt: time.Now()}
	c.mu.Unlock()
}

func (c *MemoryPermissionCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

func (c *MemoryPermissionCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// RistrettoPermissionCache backs the permission cache with a ristretto cache
// for deployments with large user populations, where admission control and
// cost-based eviction matter. Ristretto applies sets asynchronously, so a Put
// is not guaranteed to be observable by an immediately following Get; callers
// that need read-your-write semantics should use MemoryPermissionCache.
type RistrettoPermissionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewRistrettoPermissionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*RistrettoPermissionCache, error) {
	if numCounters <= 0 {
		numCounters = 100_000
	}
	if maxCost <= 0 {
		maxCost = 1 << 26
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoPermissionCache{cache: rc, ttl: ttl}, nil
}

func (c *RistrettoPermissionCache) Get(userID string) (PermissionSet, bool) {
	v, ok := c.cache.Get(userID)
	if !ok {
		return nil, false
	}
	perms, ok := v.(PermissionSet)
	return perms, ok
}

func (c *RistrettoPermissionCache) Put(userID string, perms PermissionSet) {
	c.cache.SetWithTTL(userID, perms, int64(len(perms)+1), c.ttl)
}

func (c *RistrettoPermissionCache) Invalidate(userID string) {
	c.cache.Del(userID)
}

func (c *RistrettoPermissionCache) InvalidateAll() {
	c.cache.Clear()
}

// Wait blocks until pending sets have been applied. Intended for tests.
func (c *RistrettoPermissionCache) Wait() {
	c.cache.Wait()
}
