package kv

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const defaultScanPage = 10

// In-memory implementation for tests and connection-failure fallback.
// Expiry is evaluated lazily against the injected clock.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  clock.PassiveClock
	items  map[string]memoryItem
	scans  map[uint64][]string
	scanID uint64
}

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore(c clock.PassiveClock) *MemoryStore {
	if c == nil {
		c = clock.RealClock{}
	}
	return &MemoryStore{
		clock: c,
		items: make(map[string]memoryItem),
		scans: make(map[uint64][]string),
	}
}

func (s *MemoryStore) live(item memoryItem) bool {
	return item.expiresAt.IsZero() || item.expiresAt.After(s.clock.Now())
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || !s.live(item) {
		return "", false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = s.newItem(value, ttl)
	return nil
}

func (s *MemoryStore) SetBatch(ctx context.Context, entries []Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.items[e.Key] = s.newItem(e.Value, ttl)
	}
	return nil
}

func (s *MemoryStore) newItem(value string, ttl time.Duration) memoryItem {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}
	return item
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok || !s.live(item) {
		return false, nil
	}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	} else {
		item.expiresAt = time.Time{}
	}
	s.items[key] = item
	return true, nil
}

// Scan pages over the live keys in sorted order. A cursor of 0 snapshots
// the matching key set for the whole scan, so a key that stays live for the
// scan's duration is returned exactly once no matter what expires around it.
// Keys dying mid-scan are dropped when their page is reached.
func (s *MemoryStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if count <= 0 {
		count = defaultScanPage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []string
	if cursor == 0 {
		for k, item := range s.items {
			if !s.live(item) {
				continue
			}
			if ok, err := path.Match(match, k); err != nil {
				return nil, 0, err
			} else if ok {
				pending = append(pending, k)
			}
		}
		sort.Strings(pending)
	} else {
		pending = s.scans[cursor]
		delete(s.scans, cursor)
	}

	page := make([]string, 0, count)
	for len(pending) > 0 && int64(len(page)) < count {
		k := pending[0]
		pending = pending[1:]
		if item, ok := s.items[k]; ok && s.live(item) {
			page = append(page, k)
		}
	}
	if len(pending) == 0 {
		return page, 0, nil
	}
	s.scanID++
	s.scans[s.scanID] = pending
	return page, s.scanID, nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, keys []string) ([]*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]*string, len(keys))
	for i, k := range keys {
		if item, ok := s.items[k]; ok && s.live(item) {
			v := item.value
			values[i] = &v
		}
	}
	return values, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// RemainingTTL reports the time left before key expires. It exists for
// tests asserting TTL-refresh behavior; zero duration with ok=true means
// the key never expires.
func (s *MemoryStore) RemainingTTL(key string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || !s.live(item) {
		return 0, false
	}
	if item.expiresAt.IsZero() {
		return 0, true
	}
	return item.expiresAt.Sub(s.clock.Now()), true
}
