package kv

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), srv
}

func TestRedisStore_SetGetWithTTL(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 10*time.Second); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok || val != "v1" {
		t.Fatalf("Get() = %q, %v, %v; want v1", val, ok, err)
	}

	if ttl := srv.TTL("k1"); ttl != 10*time.Second {
		t.Errorf("Expected 10s TTL, got %v", ttl)
	}

	srv.FastForward(11 * time.Second)
	_, ok, err = store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() after expiry failed: %v", err)
	}
	if ok {
		t.Error("Expected key to be expired")
	}
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, ok, err := store.Get(context.Background(), "never-set")
	if err != nil {
		t.Fatalf("Get() on missing key failed: %v", err)
	}
	if ok {
		t.Error("Missing key should read as absent, not an error")
	}
}

func TestRedisStore_ExpireRefresh(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()

	_ = store.Set(ctx, "k1", "v1", 10*time.Second)
	srv.FastForward(8 * time.Second)

	ok, err := store.Expire(ctx, "k1", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("Expire() = %v, %v; want refresh", ok, err)
	}
	if ttl := srv.TTL("k1"); ttl != 30*time.Second {
		t.Errorf("Expected refreshed 30s TTL, got %v", ttl)
	}

	ok, err = store.Expire(ctx, "missing", 30*time.Second)
	if err != nil {
		t.Fatalf("Expire() on missing key failed: %v", err)
	}
	if ok {
		t.Error("Expire() on missing key should report false")
	}
}

func TestRedisStore_ScanPagination(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		k := fmt.Sprintf("audit:g1:i-%d:latest-status", i)
		want[k] = true
		if err := store.Set(ctx, k, "v", 0); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}
	_ = store.Set(ctx, "audit:other:i-0:latest-status", "v", 0)

	seen := make(map[string]int)
	var cursor uint64
	for {
		page, next, err := store.Scan(ctx, cursor, "audit:g1:*", 2)
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		for _, k := range page {
			seen[k]++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(seen) != len(want) {
		t.Fatalf("Expected %d keys, got %d: %v", len(want), len(seen), seen)
	}
	for k := range want {
		if seen[k] != 1 {
			t.Errorf("Key %s returned %d times", k, seen[k])
		}
	}
}

func TestRedisStore_BatchOps(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	entries := []Entry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	if err := store.SetBatch(ctx, entries, time.Minute); err != nil {
		t.Fatalf("SetBatch() failed: %v", err)
	}

	values, err := store.GetBatch(ctx, []string{"a", "missing", "c"})
	if err != nil {
		t.Fatalf("GetBatch() failed: %v", err)
	}
	if values[0] == nil || *values[0] != "1" {
		t.Errorf("Expected a=1, got %v", values[0])
	}
	if values[1] != nil {
		t.Errorf("Expected nil for missing key, got %q", *values[1])
	}
	if values[2] == nil || *values[2] != "3" {
		t.Errorf("Expected c=3, got %v", values[2])
	}
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("AUTOSCALER_REDIS_ADDR_INTEGRATION")
	if addr == "" {
		t.Skip("set AUTOSCALER_REDIS_ADDR_INTEGRATION to run Redis integration tests")
	}
	ctx := context.Background()
	store, err := Connect(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer store.Close()

	key := fmt.Sprintf("autoscaler:test:integration:%d", time.Now().UnixNano())
	if err := store.Set(ctx, key, "v", 30*time.Second); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	defer func() { _ = store.Delete(ctx, key) }()

	val, ok, err := store.Get(ctx, key)
	if err != nil || !ok || val != "v" {
		t.Fatalf("Get() = %q, %v, %v; want v", val, ok, err)
	}
}
