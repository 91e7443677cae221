package audit

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

// Kind tags an audit event variant. The wire string doubles as the key
// suffix under audit:{group}:....
type Kind string

const (
	KindLaunchRequested    Kind = "request-to-launch"
	KindTerminateRequested Kind = "request-to-terminate"
	KindLatestStatus       Kind = "latest-status"
	KindLastLauncherRun    Kind = "last-launcher-run"
	KindLastAutoScalerRun  Kind = "last-autoScaler-run"
	KindLauncherAction     Kind = "launcher-action-item"
	KindAutoScalerAction   Kind = "autoScaler-action-item"
)

// InstanceEvent is a per-instance lifecycle event.
type InstanceEvent struct {
	InstanceID string               `json:"instanceId"`
	Kind       Kind                 `json:"type"`
	Timestamp  int64                `json:"timestamp"`
	State      *model.InstanceState `json:"state,omitempty"`
}

// GroupEvent is a group-level control-loop event.
type GroupEvent struct {
	GroupName string `json:"groupName"`
	Kind      Kind   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Payload   string `json:"payload,omitempty"`
}

// record is the persisted envelope; instance and group fields are disjoint
// and Kind decides which view applies.
type record struct {
	Kind       Kind                 `json:"type"`
	InstanceID string               `json:"instanceId,omitempty"`
	GroupName  string               `json:"groupName,omitempty"`
	Timestamp  int64                `json:"timestamp"`
	State      *model.InstanceState `json:"state,omitempty"`
	Payload    string               `json:"payload,omitempty"`
}

// Store is the append-only, TTL-bounded audit event log.
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
	if scanCount <= 0 {
		scanCount = 100
	}
	return &Store{kv: store, clock: c, ttl: ttl, scanCount: scanCount}
}

func instanceKey(group, instanceID string, kind Kind) string {
	return fmt.Sprintf("audit:%s:%s:%s", group, instanceID, kind)
}

func groupKey(group string, kind Kind) string {
	return fmt.Sprintf("audit:%s:%s", group, kind)
}

func actionKey(group string, kind Kind, ts int64) string {
	return fmt.Sprintf("audit:%s:%s:%d", group, kind, ts)
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *Store) write(ctx context.Context, key string, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.kv.Set(ctx, key, string(b), s.ttl)
}

// SaveLaunchEvent records that a launch was requested for instanceID.
func (s *Store) SaveLaunchEvent(ctx context.Context, group, instanceID string) error {
	return s.write(ctx, instanceKey(group, instanceID, KindLaunchRequested), record{
		Kind:       KindLaunchRequested,
		InstanceID: instanceID,
		Timestamp:  s.now(),
	})
}

// SaveShutdownEvents records a terminate request for every instance in one
// pipelined write. Partial application across keys is possible and accepted.
func (s *Store) SaveShutdownEvents(ctx context.Context, instances []model.InstanceDetails) error {
	ts := s.now()
	entries := make([]kv.Entry, 0, len(instances))
	for _, inst := range instances {
		b, err := json.Marshal(record{
			Kind:       KindTerminateRequested,
			InstanceID: inst.InstanceID,
			Timestamp:  ts,
		})
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		entries = append(entries, kv.Entry{
			Key:   instanceKey(inst.Group, inst.InstanceID, KindTerminateRequested),
			Value: string(b),
		})
	}
	return s.kv.SetBatch(ctx, entries, s.ttl)
}

// SaveLatestStatus records the instance's most recent reported state. On
// success the launch and terminate markers for the same instance get a
// best-effort TTL extension: an instance that keeps reporting is alive, so
// its lifecycle markers must not expire out from under it.
func (s *Store) SaveLatestStatus(ctx context.Context, group, instanceID string, state *model.InstanceState) error {
	err := s.write(ctx, instanceKey(group, instanceID, KindLatestStatus), record{
		Kind:       KindLatestStatus,
		InstanceID: instanceID,
		Timestamp:  s.now(),
		State:      state,
	})
	if err != nil {
		return err
	}
	s.refreshIfPresent(ctx, instanceKey(group, instanceID, KindLaunchRequested))
	s.refreshIfPresent(ctx, instanceKey(group, instanceID, KindTerminateRequested))
	return nil
}

// refreshIfPresent extends key's TTL when it still exists. The result is
// observed and discarded: a missing key or a failed refresh never fails
// the surrounding write.
func (s *Store) refreshIfPresent(ctx context.Context, key string) {
	if _, err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		log.Printf("audit: ttl refresh of %s failed: %v", key, err)
	}
}

// UpdateLastLauncherRun overwrites the group's launcher run marker.
func (s *Store) UpdateLastLauncherRun(ctx context.Context, group string) error {
	return s.write(ctx, groupKey(group, KindLastLauncherRun), record{
		Kind:      KindLastLauncherRun,
		GroupName: group,
		Timestamp: s.now(),
	})
}

// UpdateLastAutoScalerRun overwrites the group's autoscaler run marker.
func (s *Store) UpdateLastAutoScalerRun(ctx context.Context, group string) error {
	return s.write(ctx, groupKey(group, KindLastAutoScalerRun), record{
		Kind:      KindLastAutoScalerRun,
		GroupName: group,
		Timestamp: s.now(),
	})
}

// SaveLauncherActionItem appends a launcher scaling decision. Each item is
// keyed by its timestamp so prior items are never overwritten.
func (s *Store) SaveLauncherActionItem(ctx context.Context, group, action string) error {
	ts := s.now()
	return s.write(ctx, actionKey(group, KindLauncherAction, ts), record{
		Kind:      KindLauncherAction,
		GroupName: group,
		Timestamp: ts,
		Payload:   action,
	})
}

// SaveAutoScalerActionItem appends an autoscaler scaling decision.
func (s *Store) SaveAutoScalerActionItem(ctx context.Context, group, action string) error {
	ts := s.now()
	return s.write(ctx, actionKey(group, KindAutoScalerAction, ts), record{
		Kind:      KindAutoScalerAction,
		GroupName: group,
		Timestamp: ts,
		Payload:   action,
	})
}

// GetInstanceAudit returns every live per-instance event for the group.
func (s *Store) GetInstanceAudit(ctx context.Context, group string) ([]InstanceEvent, error) {
	records, err := s.getAll(ctx, group)
	if err != nil {
		return nil, err
	}
	events := make([]InstanceEvent, 0, len(records))
	for _, rec := range records {
		switch rec.Kind {
		case KindLaunchRequested, KindTerminateRequested, KindLatestStatus:
			events = append(events, InstanceEvent{
				InstanceID: rec.InstanceID,
				Kind:       rec.Kind,
				Timestamp:  rec.Timestamp,
				State:      rec.State,
			})
		case KindLastLauncherRun, KindLastAutoScalerRun, KindLauncherAction, KindAutoScalerAction:
			// group-level event, not part of this view
		}
	}
	return events, nil
}

// GetGroupAudit returns every live group-level event for the group.
func (s *Store) GetGroupAudit(ctx context.Context, group string) ([]GroupEvent, error) {
	records, err := s.getAll(ctx, group)
	if err != nil {
		return nil, err
	}
	events := make([]GroupEvent, 0, len(records))
	for _, rec := range records {
		switch rec.Kind {
		case KindLastLauncherRun, KindLastAutoScalerRun, KindLauncherAction, KindAutoScalerAction:
			events = append(events, GroupEvent{
				GroupName: rec.GroupName,
				Kind:      rec.Kind,
				Timestamp: rec.Timestamp,
				Payload:   rec.Payload,
			})
		case KindLaunchRequested, KindTerminateRequested, KindLatestStatus:
			// instance-level event, not part of this view
		}
	}
	return events, nil
}

// getAll enumerates the group's audit keys with a full cursor loop, then
// batch-fetches the values page by page. Keys that expire between scan and
// fetch come back nil and are skipped; they are absent, not an error.
func (s *Store) getAll(ctx context.Context, group string) ([]record, error) {
	match := fmt.Sprintf("audit:%s:*", group)
	seen := make(map[string]bool)
	var keys []string
	var cursor uint64
	for {
		page, next, err := s.kv.Scan(ctx, cursor, match, s.scanCount)
		if err != nil {
			return nil, fmt.Errorf("scan audit keys for %s: %w", group, err)
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

	records := make([]record, 0, len(keys))
	for start := 0; start < len(keys); start += int(s.scanCount) {
		end := start + int(s.scanCount)
		if end > len(keys) {
			end = len(keys)
		}
		values, err := s.kv.GetBatch(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch audit values for %s: %w", group, err)
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			var rec record
			if err := json.Unmarshal([]byte(*v), &rec); err != nil {
				log.Printf("audit: skipping malformed record at %s: %v", keys[start+i], err)
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
