package cache

import (
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("https://example.org/obj/1", "hello")

	v, ok := c.Get("https://example.org/obj/1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if v.(string) != "hello" {
		t.Errorf("got %v, want %q", v, "hello")
	}
}

func TestGetMiss(t *testing.T) {
	c := New(10, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Errorf("expected miss for absent key")
	}
}

func TestExpiry(t *testing.T) {
	c := New(10, time.Minute)
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.Set("k", "v")
	c.now = func() time.Time { return fixed.Add(2 * time.Minute) }

	if _, ok := c.Get("k"); ok {
		t.Errorf("expected expired entry to be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on read, Len() = %d", c.Len())
	}
}

func TestPerEntryTTL(t *testing.T) {
	c := New(10, time.Minute)
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.SetWithTTL("object-doc", "v1", 5*time.Minute)
	c.SetWithTTL("vocab-term", "v2", 60*time.Minute)

	c.now = func() time.Time { return fixed.Add(10 * time.Minute) }

	if _, ok := c.Get("object-doc"); ok {
		t.Errorf("object-doc TTL should have expired")
	}
	if _, ok := c.Get("vocab-term"); !ok {
		t.Errorf("vocab-term TTL should still be valid")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most-recently-used, b is least
	c.Set("c", 3) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Errorf("expected b to be evicted as least-recently-used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected c to be present")
	}
}

func TestSetReplaceResetsRecency(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("k", "v1")
	c.Set("k", "v2")

	v, ok := c.Get("k")
	if !ok || v.(string) != "v2" {
		t.Errorf("got %v, ok=%v, want v2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (replace must not grow the cache)", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Errorf("expected deleted key to miss")
	}
}

func TestByteIdenticalOnCacheHit(t *testing.T) {
	// Cache hits return objects identical to the cached copy, with no
	// reformatting on retrieval.
	type doc struct {
		Title string
		Body  []byte
	}
	c := New(10, time.Minute)
	original := doc{Title: "t", Body: []byte("raw bytes")}
	c.Set("uri", original)

	v, ok := c.Get("uri")
	if !ok {
		t.Fatalf("expected hit")
	}
	got := v.(doc)
	if got.Title != original.Title || string(got.Body) != string(original.Body) {
		t.Errorf("cached value mutated: got %+v, want %+v", got, original)
	}
}
