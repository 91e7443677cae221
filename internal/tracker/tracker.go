package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"k8s.io/utils/clock"

	"github.com/taotao0/jitsi-autoscaler/internal/kv"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

// Store keeps the tracked view of the fleet: the state each instance last
// reported, expiring when an instance goes quiet.
type Store struct {
	kv        kv.Store
	clock     clock.PassiveClock
	ttl       time.Duration
	scanCount int64
}

func NewStore(store kv.Store, c clock.PassiveClock, ttl time.Duration, scanCount int64) *Store {
	if c == nil {
		c = clock.RealClock{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if scanCount <= 0 {
		scanCount = 100
	}
	return &Store{kv: store, clock: c, ttl: ttl, scanCount: scanCount}
}

func stateKey(group, instanceID string) string {
	return fmt.Sprintf("tracker:%s:%s", group, instanceID)
}

// Record stores state as the instance's current tracked state.
func (s *Store) Record(ctx context.Context, state model.InstanceState) error {
	if state.Timestamp == 0 {
		state.Timestamp = s.clock.Now().UnixMilli()
	}
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal instance state: %w", err)
	}
	return s.kv.Set(ctx, stateKey(state.Metadata.Group, state.InstanceID), string(b), s.ttl)
}

// Track converts a stats report into a tracked state and records it. This
// is the delegate for instance types with a rich status model: the report's
// stats blob is parsed for the type-specific sub-status.
func (s *Store) Track(ctx context.Context, report model.StatsReport) error {
	return s.Record(ctx, s.StateFrom(report))
}

// StateFrom builds a tracked state out of a sidecar stats report.
func (s *Store) StateFrom(report model.StatsReport) model.InstanceState {
	state := model.InstanceState{
		InstanceID:   report.Instance.InstanceID,
		InstanceType: report.Instance.InstanceType,
		Status: model.InstanceStatus{
			Stats: report.Stats,
		},
		Metadata: model.InstanceMetadata{
			Group: report.Instance.Group,
		},
		Timestamp: report.Timestamp,
	}
	if state.Timestamp == 0 {
		state.Timestamp = s.clock.Now().UnixMilli()
	}
	if report.Instance.InstanceType == model.TypeJibri && len(report.Stats) > 0 {
		var stats model.JibriStats
		if err := json.Unmarshal(report.Stats, &stats); err == nil {
			state.Status.BusyStatus = stats.BusyStatus
		}
	}
	return state
}

// GetCurrent returns every live tracked state in the group. The scan is a
// best-effort snapshot: entries expiring between scan and fetch are skipped.
func (s *Store) GetCurrent(ctx context.Context, group string) ([]model.InstanceState, error) {
	match := fmt.Sprintf("tracker:%s:*", group)
	seen := make(map[string]bool)
	var keys []string
	var cursor uint64
	for {
		page, next, err := s.kv.Scan(ctx, cursor, match, s.scanCount)
		if err != nil {
			return nil, fmt.Errorf("scan tracked instances for %s: %w", group, err)
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

	values, err := s.kv.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch tracked instances for %s: %w", group, err)
	}
	states := make([]model.InstanceState, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		var state model.InstanceState
		if err := json.Unmarshal([]byte(*v), &state); err != nil {
			log.Printf("tracker: skipping malformed state at %s: %v", keys[i], err)
			continue
		}
		states = append(states, state)
	}
	return states, nil
}
