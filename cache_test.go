package dataguard

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryPermissionCache(time.Minute)
	c.Put("u1", NewPermissionSet("a:read"))

	perms, ok := c.Get("u1")
	if !ok || !perms.Has("a:read") {
		t.Fatalf("expected hit with a:read")
	}
	if _, ok := c.Get("u2"); ok {
		t.Fatalf("expected miss for unknown user")
	}
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	c := NewMemoryPermissionCache(20 * time.Millisecond)
	c.Put("u1", NewPermissionSet("a:read"))

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("u1"); ok {
		t.Fatalf("expected miss after TTL")
	}
	// the expired entry is removed on the read that found it
	c.mu.RLock()
	_, still := c.entries["u1"]
	c.mu.RUnlock()
	if still {
		t.Fatalf("expired entry should have been dropped")
	}
}

func TestMemoryCacheInvalidateWithinTTL(t *testing.T) {
	// coherence: an explicit invalidate is a miss even before the TTL elapses
	c := NewMemoryPermissionCache(time.Hour)
	c.Put("u1", NewPermissionSet("a:read"))
	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Fatalf("expected miss after invalidate inside TTL window")
	}
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	c := NewMemoryPermissionCache(time.Hour)
	c.Put("u1", NewPermissionSet("a:read"))
	c.Put("u2", NewPermissionSet("b:read"))
	c.InvalidateAll()
	if _, ok := c.Get("u1"); ok {
		t.Fatalf("expected u1 flushed")
	}
	if _, ok := c.Get("u2"); ok {
		t.Fatalf("expected u2 flushed")
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryPermissionCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 200; j++ {
				c.Put(id, NewPermissionSet("x:read"))
				c.Get(id)
				if j%50 == 0 {
					c.Invalidate(id)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRistrettoCacheRoundtrip(t *testing.T) {
	c, err := NewRistrettoPermissionCache(0, 0, 0, time.Minute)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	c.Put("u1", NewPermissionSet("a:read"))
	c.Wait()

	perms, ok := c.Get("u1")
	if !ok || !perms.Has("a:read") {
		t.Fatalf("expected hit after Wait")
	}

	c.Invalidate("u1")
	c.Wait()
	if _, ok := c.Get("u1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}
