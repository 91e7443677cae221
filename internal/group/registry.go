package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/taotao0/jitsi-autoscaler/internal/kv"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

const scanCount = 100

// Registry is the instance-group configuration store. Group entries carry
// no TTL; they persist until deleted.
type Registry struct {
	kv kv.Store
}

func NewRegistry(store kv.Store) *Registry {
	return &Registry{kv: store}
}

func groupKey(name string) string {
	return "group:" + name
}

// Upsert creates or replaces the group configuration.
func (r *Registry) Upsert(ctx context.Context, g model.InstanceGroup) error {
	if g.Name == "" {
		return errors.New("instance group name is required")
	}
	b, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal group %s: %w", g.Name, err)
	}
	return r.kv.Set(ctx, groupKey(g.Name), string(b), 0)
}

// Get returns the named group; the second result reports whether it exists.
func (r *Registry) Get(ctx context.Context, name string) (model.InstanceGroup, bool, error) {
	val, ok, err := r.kv.Get(ctx, groupKey(name))
	if err != nil || !ok {
		return model.InstanceGroup{}, false, err
	}
	var g model.InstanceGroup
	if err := json.Unmarshal([]byte(val), &g); err != nil {
		return model.InstanceGroup{}, false, fmt.Errorf("unmarshal group %s: %w", name, err)
	}
	return g, true, nil
}

// Delete removes the named group. Deleting an absent group is not an error.
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.kv.Delete(ctx, groupKey(name))
}

// List returns every configured group.
func (r *Registry) List(ctx context.Context) ([]model.InstanceGroup, error) {
	seen := make(map[string]bool)
	var keys []string
	var cursor uint64
	for {
		page, next, err := r.kv.Scan(ctx, cursor, "group:*", scanCount)
		if err != nil {
			return nil, fmt.Errorf("scan groups: %w", err)
		}
		for _, k := range page {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	values, err := r.kv.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	groups := make([]model.InstanceGroup, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		var g model.InstanceGroup
		if err := json.Unmarshal([]byte(*v), &g); err != nil {
			log.Printf("group: skipping malformed entry at %s: %v", keys[i], err)
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}
