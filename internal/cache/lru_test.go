package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3) // b is least recently used now

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to be cached", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(30 * time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected fresh value, got %q %v", v, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to be dropped")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("Size = %d after cleanup", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("users/u1/tx", 1)
	c.Set("users/u1/pool", 2)
	c.Set("users/u2/tx", 3)

	if n := c.DeletePrefix("users/u1/"); n != 2 {
		t.Fatalf("DeletePrefix removed %d, want 2", n)
	}
	if _, ok := c.Get("users/u2/tx"); !ok {
		t.Fatal("other user's entry should survive")
	}
	c.Delete("users/u2/tx")
	if c.Size() != 0 {
		t.Fatalf("Size = %d, want 0", c.Size())
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager(nil)
	c := NewLRUCache[int](1, time.Nanosecond)
	m.Register(c)
	c.Set("k", 1)
	m.StartCleanup(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	m.Stop()
	m.Stop() // second stop is a no-op
	if c.Size() != 0 {
		t.Fatalf("expected cleanup to purge expired entry, size %d", c.Size())
	}
}
