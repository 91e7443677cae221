package kv

import (
	"context"
	"errors"
	"time"
)

// ErrPersistence marks a write whose store acknowledgment was not the
// expected success marker. Audit write paths surface it; best-effort
// refresh paths discard it.
var ErrPersistence = errors.New("store write not acknowledged")

// Entry is one key/value pair in a batched write.
type Entry struct {
	Key   string
	Value string
}

// Store is the TTL-capable key-value store all subsystems persist through.
// A zero ttl means no expiry. Scan follows Redis cursor semantics: callers
// loop until the returned cursor is 0 again; match is a glob pattern and
// count a page-size hint only.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetBatch(ctx context.Context, entries []Entry, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	GetBatch(ctx context.Context, keys []string) ([]*string, error)
	Delete(ctx context.Context, keys ...string) error
}
