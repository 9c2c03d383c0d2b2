package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string, int](10)

	if err := c.Put("a", 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Errorf("Expected 1, got %d (ok=%v)", got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for unknown key")
	}

	c.Delete("a")
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after delete, got %d entries", c.Len())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string, int](3)
	for i := 0; i < 3; i++ {
		_ = c.Put(fmt.Sprintf("k%d", i), i)
	}

	// k0 becomes most recently used; k1 is now the oldest.
	c.Get("k0")
	_ = c.Put("k3", 3)

	if _, ok := c.Get("k1"); ok {
		t.Error("Expected k1 to be evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("Expected %s to be present", key)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestLRU_Weighted(t *testing.T) {
	c := NewWeightedLRU[string](10, func(b []byte) int64 { return int64(len(b)) })

	_ = c.Put("a", make([]byte, 6))
	_ = c.Put("b", make([]byte, 6))
	if _, ok := c.Get("a"); ok {
		t.Error("Expected a to be evicted to make room for b")
	}

	if err := c.Put("huge", make([]byte, 11)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

func TestLRU_DeleteFunc(t *testing.T) {
	c := NewLRU[string, bool](10)
	_ = c.Put("com.a|x", true)
	_ = c.Put("com.a|y", true)
	_ = c.Put("com.b|x", true)

	removed := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "com.a|") })
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry left, got %d", c.Len())
	}
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU[int, int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = c.Put(g*100+i, i)
				c.Get(i)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Expected at most 50 entries, got %d", c.Len())
	}
}
