package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taotao0/jitsi-autoscaler/internal/kv"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

const (
	shutdownSentinel  = "shutdown"
	protectedSentinel = "isScaleDownProtected"

	defaultTTL = 15 * time.Minute
)

// StatsTracker consumes stats reports for instance types with a richer
// state model than an opaque blob.
type StatsTracker interface {
	Track(ctx context.Context, report model.StatsReport) error
}

// Store holds short-lived per-instance flags: shutdown markers, scale-down
// protection, and opaque stats blobs. Absence of any flag reads as false or
// unknown, never as an error.
type Store struct {
	kv       kv.Store
	ttl      time.Duration
	trackers map[string]StatsTracker
}

func NewStore(store kv.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		kv:       store,
		ttl:      ttl,
		trackers: make(map[string]StatsTracker),
	}
}

// RegisterTracker routes stats reports for instanceType to a dedicated
// tracker instead of the opaque blob store.
func (s *Store) RegisterTracker(instanceType string, tracker StatsTracker) {
	s.trackers[instanceType] = tracker
}

// HasTracker reports whether instanceType has a dedicated stats tracker.
func (s *Store) HasTracker(instanceType string) bool {
	_, ok := s.trackers[instanceType]
	return ok
}

func shutdownKey(instanceID string) string {
	return "instance:shutdown:" + instanceID
}

func statsKey(instanceID string) string {
	return "instance:stats:" + instanceID
}

func protectedKey(instanceID string) string {
	return "instance:scale-down-protected:" + instanceID
}

// SetShutdownStatus marks the instance as shutting down for the flag TTL.
func (s *Store) SetShutdownStatus(ctx context.Context, instance model.InstanceDetails) error {
	return s.kv.Set(ctx, shutdownKey(instance.InstanceID), shutdownSentinel, s.ttl)
}

// GetShutdownStatus reports whether the instance is flagged shutting down.
// A never-set or expired flag reads as false.
func (s *Store) GetShutdownStatus(ctx context.Context, instanceID string) (bool, error) {
	val, ok, err := s.kv.Get(ctx, shutdownKey(instanceID))
	if err != nil {
		return false, err
	}
	return ok && val == shutdownSentinel, nil
}

// SetScaleDownProtected shields the instance from scale-down for the
// flag TTL.
func (s *Store) SetScaleDownProtected(ctx context.Context, instanceID string) error {
	return s.kv.Set(ctx, protectedKey(instanceID), protectedSentinel, s.ttl)
}

// GetScaleDownProtected reports whether the instance is currently shielded
// from scale-down.
func (s *Store) GetScaleDownProtected(ctx context.Context, instanceID string) (bool, error) {
	val, ok, err := s.kv.Get(ctx, protectedKey(instanceID))
	if err != nil {
		return false, err
	}
	return ok && val == protectedSentinel, nil
}

// ReportStats persists a sidecar stats report. Types with a registered
// tracker are delegated to it; everything else is stored verbatim as an
// opaque blob. The payload is never validated or transformed here.
func (s *Store) ReportStats(ctx context.Context, report model.StatsReport) error {
	if tracker, ok := s.trackers[report.Instance.InstanceType]; ok {
		return tracker.Track(ctx, report)
	}
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal stats report: %w", err)
	}
	return s.kv.Set(ctx, statsKey(report.Instance.InstanceID), string(b), s.ttl)
}
