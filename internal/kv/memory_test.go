package kv

import (
	"context"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"
)

func TestMemoryStore_SetGetExpiry(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	store := NewMemoryStore(fc)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 10*time.Second); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	val, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v; want value", val, ok, err)
	}
	if val != "v1" {
		t.Errorf("Expected v1, got %s", val)
	}

	fc.Step(11 * time.Second)
	_, ok, err = store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() after expiry failed: %v", err)
	}
	if ok {
		t.Error("Expected key to be expired")
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	store := NewMemoryStore(fc)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	fc.Step(1000 * time.Hour)
	_, ok, _ := store.Get(ctx, "k1")
	if !ok {
		t.Error("Key with zero TTL should never expire")
	}
}

func TestMemoryStore_ExpireRefreshesTTL(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	store := NewMemoryStore(fc)
	ctx := context.Background()

	_ = store.Set(ctx, "k1", "v1", 10*time.Second)
	fc.Step(8 * time.Second)

	ok, err := store.Expire(ctx, "k1", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("Expire() = %v, %v; want refresh", ok, err)
	}

	fc.Step(8 * time.Second)
	_, present, _ := store.Get(ctx, "k1")
	if !present {
		t.Error("Key should still be live after TTL refresh")
	}

	// Refreshing an absent key reports false, not an error.
	ok, err = store.Expire(ctx, "missing", 10*time.Second)
	if err != nil {
		t.Fatalf("Expire() on missing key failed: %v", err)
	}
	if ok {
		t.Error("Expire() on missing key should report false")
	}
}

func TestMemoryStore_ScanPagination(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	keys := []string{"audit:g1:a", "audit:g1:b", "audit:g1:c", "audit:g1:d", "audit:g1:e"}
	for _, k := range keys {
		_ = store.Set(ctx, k, "v", 0)
	}
	_ = store.Set(ctx, "audit:g2:a", "v", 0)

	seen := make(map[string]int)
	var cursor uint64
	pages := 0
	for {
		page, next, err := store.Scan(ctx, cursor, "audit:g1:*", 2)
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		pages++
		for _, k := range page {
			seen[k]++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if pages < 3 {
		t.Errorf("Expected at least 3 pages with count=2 over 5 keys, got %d", pages)
	}
	if len(seen) != len(keys) {
		t.Fatalf("Expected %d distinct keys, got %d", len(keys), len(seen))
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("Key %s returned %d times", k, n)
		}
	}
}

func TestMemoryStore_ScanSurvivesMidScanExpiry(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	store := NewMemoryStore(fc)
	ctx := context.Background()

	// k2 expires while the scan is in flight; every other key must still be
	// returned exactly once.
	for _, k := range []string{"k1", "k3", "k4", "k5"} {
		_ = store.Set(ctx, k, "v", 0)
	}
	_ = store.Set(ctx, "k2", "v", 30*time.Second)

	page, cursor, err := store.Scan(ctx, 0, "k*", 2)
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if cursor == 0 {
		t.Fatal("Expected more pages after the first")
	}

	fc.Step(time.Minute)

	seen := make(map[string]int)
	for _, k := range page {
		seen[k]++
	}
	for cursor != 0 {
		page, cursor, err = store.Scan(ctx, cursor, "k*", 2)
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		for _, k := range page {
			seen[k]++
		}
	}

	for _, k := range []string{"k1", "k3", "k4", "k5"} {
		if seen[k] != 1 {
			t.Errorf("Key %s returned %d times; keys live for the whole scan must appear exactly once", k, seen[k])
		}
	}
}

func TestMemoryStore_GetBatchMissingKeys(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_ = store.Set(ctx, "a", "1", 0)
	_ = store.Set(ctx, "c", "3", 0)

	values, err := store.GetBatch(ctx, []string{"a", "b", "c"})
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

func TestMemoryStore_SetBatchAndDelete(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	entries := []Entry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	if err := store.SetBatch(ctx, entries, time.Minute); err != nil {
		t.Fatalf("SetBatch() failed: %v", err)
	}
	for _, e := range entries {
		val, ok, _ := store.Get(ctx, e.Key)
		if !ok || val != e.Value {
			t.Errorf("Expected %s=%s, got %q (present=%v)", e.Key, e.Value, val, ok)
		}
	}

	if err := store.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Error("Key a should be deleted")
	}
}

func TestMemoryStore_RemainingTTL(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	store := NewMemoryStore(fc)
	ctx := context.Background()

	_ = store.Set(ctx, "k1", "v1", time.Minute)
	remaining, ok := store.RemainingTTL("k1")
	if !ok || remaining != time.Minute {
		t.Errorf("RemainingTTL() = %v, %v; want 1m, true", remaining, ok)
	}

	fc.Step(30 * time.Second)
	remaining, ok = store.RemainingTTL("k1")
	if !ok || remaining != 30*time.Second {
		t.Errorf("RemainingTTL() = %v, %v; want 30s, true", remaining, ok)
	}

	if _, ok := store.RemainingTTL("missing"); ok {
		t.Error("RemainingTTL() on missing key should report false")
	}
}
