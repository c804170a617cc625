package cache

import (
	"context"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	k1 := GenerateKey("text-embedding-3-small", "hello")
	k2 := GenerateKey("text-embedding-3-small", "hello")
	k3 := GenerateKey("text-embedding-3-small", "world")
	k4 := GenerateKey("other-model", "hello")

	if k1 != k2 {
		t.Error("identical inputs must produce identical keys")
	}
	if k1 == k3 {
		t.Error("different texts must produce different keys")
	}
	if k1 == k4 {
		t.Error("different models must produce different keys")
	}
}

func TestCacheSetGet(t *testing.T) {
	c := New(&Config{Enabled: true, DefaultTTL: time.Hour, MaxSize: 10})
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	key := GenerateKey("m", "some text")

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected miss before set")
	}
	if err := c.Set(ctx, key, "m", vec); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Errorf("unexpected cached vector: %v", got)
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCacheExpiration(t *testing.T) {
	c := New(&Config{Enabled: true, DefaultTTL: -time.Second, MaxSize: 10})
	ctx := context.Background()

	key := GenerateKey("m", "text")
	if err := c.Set(ctx, key, "m", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New(&Config{Enabled: false})
	ctx := context.Background()

	key := GenerateKey("m", "text")
	if err := c.Set(ctx, key, "m", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Error("disabled cache must never hit")
	}
}

func TestCacheEviction(t *testing.T) {
	c := New(&Config{Enabled: true, DefaultTTL: time.Hour, MaxSize: 2})
	ctx := context.Background()

	c.Set(ctx, "k1", "m", []float32{1})
	time.Sleep(2 * time.Millisecond) // distinct CachedAt ordering
	c.Set(ctx, "k2", "m", []float32{2})
	time.Sleep(2 * time.Millisecond)
	c.Set(ctx, "k3", "m", []float32{3})

	if _, ok := c.Get(ctx, "k1"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(ctx, "k3"); !ok {
		t.Error("expected newest entry to survive eviction")
	}
}
