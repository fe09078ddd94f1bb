package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, "k", payload{"PTT", 34.5}, time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := GetTyped[payload](ctx, mc, "k")
	if err != nil || got.Symbol != "PTT" || got.Close != 34.5 {
		t.Fatalf("got %+v, %v", got, err)
	}

	var s string
	_ = mc.Set(ctx, "s", "raw", 0)
	if err := mc.Get(ctx, "s", &s); err != nil || s != "raw" {
		t.Fatalf("string = %q, %v", s, err)
	}

	if err := mc.Get(ctx, "missing", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "k", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := mc.Exists(ctx, "a"); !ok {
		t.Fatalf("a was used recently and must survive")
	}
	if mc.Len() != 2 {
		t.Fatalf("len = %d", mc.Len())
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "lock", time.Minute)
	if !ok {
		t.Fatalf("first lock must succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); ok {
		t.Fatalf("second lock must fail")
	}
	_ = mc.Unlock(ctx, "lock")
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("lock after unlock must succeed")
	}
}

func TestMemoryCacheSweepsExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer mc.Close()

	_ = mc.Set(ctx, "bars:SET:PTT", "short", time.Millisecond)
	_ = mc.Set(ctx, "bars:SET:AOT", "long", time.Hour)
	deadline := time.Now().Add(time.Second)
	for mc.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expired entry not swept, len = %d", mc.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCacheLockSurvivesEviction(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(1))
	defer mc.Close()

	if ok, _ := mc.TryLock(ctx, "ingest:SET:PTT", time.Minute); !ok {
		t.Fatal("lock must succeed")
	}
	_ = mc.Set(ctx, "a", "1", 0)
	_ = mc.Set(ctx, "b", "2", 0)
	if ok, _ := mc.TryLock(ctx, "ingest:SET:PTT", time.Minute); ok {
		t.Fatal("lock was lost to cache eviction")
	}
}
