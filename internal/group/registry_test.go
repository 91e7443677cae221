package group

import (
	"context"
	"testing"

	"github.com/taotao0/jitsi-autoscaler/internal/kv"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

func TestRegistryRoundTrip(t *testing.T) {
	registry := NewRegistry(kv.NewMemoryStore(nil))
	ctx := context.Background()

	g := model.InstanceGroup{
		Name:   "recorders-us",
		Type:   model.TypeJibri,
		Cloud:  "kubernetes",
		Region: "us-east-1",
		ScalingOptions: model.ScalingOptions{
			MinDesired:   2,
			MaxDesired:   10,
			DesiredCount: 4,
		},
	}
	if err := registry.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	got, ok, err := registry.Get(ctx, "recorders-us")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want group", ok, err)
	}
	if got.Type != model.TypeJibri || got.ScalingOptions.DesiredCount != 4 {
		t.Errorf("Unexpected group: %+v", got)
	}
}

func TestRegistryGetMissing(t *testing.T) {
	registry := NewRegistry(kv.NewMemoryStore(nil))

	_, ok, err := registry.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() on missing group failed: %v", err)
	}
	if ok {
		t.Error("Missing group should report not found")
	}
}

func TestRegistryUpsertRequiresName(t *testing.T) {
	registry := NewRegistry(kv.NewMemoryStore(nil))

	if err := registry.Upsert(context.Background(), model.InstanceGroup{}); err == nil {
		t.Error("Upsert() without a name should fail")
	}
}

func TestRegistryListAndDelete(t *testing.T) {
	registry := NewRegistry(kv.NewMemoryStore(nil))
	ctx := context.Background()

	for _, name := range []string{"g1", "g2", "g3"} {
		if err := registry.Upsert(ctx, model.InstanceGroup{Name: name, Type: model.TypeJVB}); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", name, err)
		}
	}

	groups, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}

	if err := registry.Delete(ctx, "g2"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	groups, _ = registry.List(ctx)
	if len(groups) != 2 {
		t.Errorf("Expected 2 groups after delete, got %d", len(groups))
	}

	// Deleting an absent group is not an error.
	if err := registry.Delete(ctx, "g2"); err != nil {
		t.Errorf("Delete() of absent group failed: %v", err)
	}
}
