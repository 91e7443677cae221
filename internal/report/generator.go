package report

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/taotao0/jitsi-autoscaler/internal/cloud"
	"github.com/taotao0/jitsi-autoscaler/internal/model"
)

var (
	// ErrGroupNotFound: the named group has no configuration.
	ErrGroupNotFound = errors.New("instance group not found")
	// ErrUnsupportedGroupType: the group declares no instance type, so no
	// status-classification rules apply.
	ErrUnsupportedGroupType = errors.New("instance group has no instance type")
)

// GroupResolver resolves group configuration.
type GroupResolver interface {
	Get(ctx context.Context, name string) (model.InstanceGroup, bool, error)
}

// InstanceTracker supplies the tracked view of a group's fleet.
type InstanceTracker interface {
	GetCurrent(ctx context.Context, group string) ([]model.InstanceState, error)
}

// FlagProvider supplies the shutdown and scale-down-protection flags used
// to annotate a report.
type FlagProvider interface {
	GetShutdownStatus(ctx context.Context, instanceID string) (bool, error)
	GetScaleDownProtected(ctx context.Context, instanceID string) (bool, error)
}

// Generator merges the tracked and live-cloud views of a group into a
// point-in-time report. It owns no state of its own.
type Generator struct {
	groups  GroupResolver
	tracker InstanceTracker
	cloud   cloud.Provider
	flags   FlagProvider
	retry   cloud.RetryPolicy
}

func NewGenerator(groups GroupResolver, tracker InstanceTracker, provider cloud.Provider, flags FlagProvider, retry cloud.RetryPolicy) *Generator {
	return &Generator{
		groups:  groups,
		tracker: tracker,
		cloud:   provider,
		flags:   flags,
		retry:   retry,
	}
}

// GenerateReport produces the reconciled view of groupName. Any dependency
// failure aborts the whole report; a partially populated report is never
// returned.
func (g *Generator) GenerateReport(ctx context.Context, groupName string) (*model.GroupReport, error) {
	grp, ok, err := g.groups.Get(ctx, groupName)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", groupName, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", groupName, ErrGroupNotFound)
	}
	if grp.Type == "" {
		return nil, fmt.Errorf("%s: %w", groupName, ErrUnsupportedGroupType)
	}

	// The two inventory fetches are independent.
	var tracked []model.InstanceState
	var cloudInstances []cloud.Instance
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		tracked, err = g.tracker.GetCurrent(egCtx, groupName)
		if err != nil {
			return fmt.Errorf("tracked instances for %s: %w", groupName, err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		cloudInstances, err = g.cloud.GetInstances(egCtx, groupName, g.retry)
		if err != nil {
			return fmt.Errorf("cloud instances for %s: %w", groupName, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	instances := mergeInstances(tracked, cloudInstances)
	if err := g.annotate(ctx, instances); err != nil {
		return nil, err
	}

	rep := &model.GroupReport{
		GroupName:    groupName,
		DesiredCount: grp.ScalingOptions.DesiredCount,
		Count:        len(tracked),
		Instances:    instances,
	}
	foldCounters(rep)
	return rep, nil
}

// mergeInstances unions the two views by instance ID. Tracked entries come
// first in their fetch order, cloud-only entries follow; a cloud entry for
// a tracked instance overwrites display name and cloud status only.
func mergeInstances(tracked []model.InstanceState, cloudInstances []cloud.Instance) []model.InstanceReport {
	index := make(map[string]int, len(tracked))
	instances := make([]model.InstanceReport, 0, len(tracked)+len(cloudInstances))

	for _, st := range tracked {
		instances = append(instances, model.InstanceReport{
			InstanceID:     st.InstanceID,
			DisplayName:    st.InstanceID,
			ScaleStatus:    scaleStatus(st),
			CloudStatus:    model.CloudStatusUnknown,
			IsShuttingDown: st.ShutdownStatus,
			PrivateIP:      st.Metadata.PrivateIP,
			PublicIP:       st.Metadata.PublicIP,
		})
		index[st.InstanceID] = len(instances) - 1
	}

	for _, ci := range cloudInstances {
		if i, ok := index[ci.InstanceID]; ok {
			if ci.DisplayName != "" {
				instances[i].DisplayName = ci.DisplayName
			}
			instances[i].CloudStatus = ci.Status
			continue
		}
		display := ci.DisplayName
		if display == "" {
			display = ci.InstanceID
		}
		instances = append(instances, model.InstanceReport{
			InstanceID:  ci.InstanceID,
			DisplayName: display,
			ScaleStatus: model.ScaleStatusUnknown,
			CloudStatus: ci.Status,
		})
		index[ci.InstanceID] = len(instances) - 1
	}
	return instances
}

// scaleStatus classifies the tracked state. Provisioning wins regardless of
// type; otherwise the type-specific sub-status decides.
func scaleStatus(st model.InstanceState) string {
	if st.Status.Provisioning {
		return model.ScaleStatusProvisioning
	}
	switch st.InstanceType {
	case model.TypeJibri:
		if st.Status.BusyStatus == model.JibriIdle {
			return model.ScaleStatusAvailable
		}
		return model.ScaleStatusBusy
	case model.TypeJVB:
		return model.ScaleStatusOnline
	default:
		return model.ScaleStatusUnknown
	}
}

// annotate fetches shutdown and protection flags for every instance in
// parallel. Output order is fixed by slice index, not completion order; the
// first failure aborts the whole report.
func (g *Generator) annotate(ctx context.Context, instances []model.InstanceReport) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range instances {
		inst := &instances[i]
		eg.Go(func() error {
			// A tracked state already flagged shutting down short-circuits
			// the lookup.
			if !inst.IsShuttingDown {
				down, err := g.flags.GetShutdownStatus(egCtx, inst.InstanceID)
				if err != nil {
					return fmt.Errorf("shutdown status for %s: %w", inst.InstanceID, err)
				}
				inst.IsShuttingDown = down
			}
			protected, err := g.flags.GetScaleDownProtected(egCtx, inst.InstanceID)
			if err != nil {
				return fmt.Errorf("protection status for %s: %w", inst.InstanceID, err)
			}
			inst.IsScaleDownProtected = protected
			return nil
		})
	}
	return eg.Wait()
}

func foldCounters(rep *model.GroupReport) {
	for _, inst := range rep.Instances {
		live := inst.CloudStatus == model.CloudStatusProvisioning || inst.CloudStatus == model.CloudStatusRunning
		if live {
			rep.CloudCount++
		}
		if inst.IsShuttingDown {
			rep.ShuttingDownCount++
		}
		if inst.IsScaleDownProtected {
			rep.ScaleDownProtectedCount++
		}
		switch inst.ScaleStatus {
		case model.ScaleStatusProvisioning:
			rep.ProvisioningCount++
		case model.ScaleStatusAvailable:
			rep.AvailableCount++
		case model.ScaleStatusBusy:
			rep.BusyCount++
		case model.ScaleStatusUnknown:
			if live {
				rep.UnTrackedCount++
			}
		}
	}
}
