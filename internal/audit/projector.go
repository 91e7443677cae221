package audit

import (
	"encoding/json"
	"sort"
	"time"
)

const unknownValue = "unknown"

// InstanceAuditResponse is the operator-facing summary of one instance's
// lifecycle. Timestamp fields hold formatted UTC strings, or "unknown".
type InstanceAuditResponse struct {
	InstanceID         string `json:"instanceId"`
	RequestToLaunch    string `json:"requestToLaunch"`
	RequestToTerminate string `json:"requestToTerminate"`
	LatestStatus       string `json:"latestStatus"`
	LatestStatusInfo   string `json:"latestStatusInfo"`
}

// ActionItem is one recorded scaling decision.
type ActionItem struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// GroupAuditResponse is the operator-facing summary of a group's control
// loops. Action item lists are ordered most recent first.
type GroupAuditResponse struct {
	LastLauncherRun       string       `json:"lastLauncherRun"`
	LastAutoScalerRun     string       `json:"lastAutoScalerRun"`
	LauncherActionItems   []ActionItem `json:"launcherActionItems"`
	AutoScalerActionItems []ActionItem `json:"autoScalerActionItems"`
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC1123)
}

// ProjectInstanceAudit folds raw instance events into per-instance
// summaries. Events are applied in ascending timestamp order so the latest
// event of each kind wins; instances appear in order of first appearance.
func ProjectInstanceAudit(events []InstanceEvent) []InstanceAuditResponse {
	sorted := make([]InstanceEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var order []string
	byID := make(map[string]*InstanceAuditResponse)
	for _, ev := range sorted {
		resp, ok := byID[ev.InstanceID]
		if !ok {
			resp = &InstanceAuditResponse{
				InstanceID:         ev.InstanceID,
				RequestToLaunch:    unknownValue,
				RequestToTerminate: unknownValue,
				LatestStatus:       unknownValue,
				LatestStatusInfo:   unknownValue,
			}
			byID[ev.InstanceID] = resp
			order = append(order, ev.InstanceID)
		}
		switch ev.Kind {
		case KindLaunchRequested:
			resp.RequestToLaunch = formatTimestamp(ev.Timestamp)
		case KindTerminateRequested:
			resp.RequestToTerminate = formatTimestamp(ev.Timestamp)
		case KindLatestStatus:
			resp.LatestStatus = formatTimestamp(ev.Timestamp)
			if ev.State != nil {
				if b, err := json.Marshal(ev.State); err == nil {
					resp.LatestStatusInfo = string(b)
				}
			}
		}
	}

	out := make([]InstanceAuditResponse, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// ProjectGroupAudit classifies group events in a single pass. Run markers
// are last-write-wins; action items are collected and sorted most recent
// first with their timestamps rewritten as formatted UTC strings.
func ProjectGroupAudit(events []GroupEvent) GroupAuditResponse {
	resp := GroupAuditResponse{
		LastLauncherRun:       unknownValue,
		LastAutoScalerRun:     unknownValue,
		LauncherActionItems:   []ActionItem{},
		AutoScalerActionItems: []ActionItem{},
	}

	var launcher, autoScaler []GroupEvent
	for _, ev := range events {
		switch ev.Kind {
		case KindLastLauncherRun:
			resp.LastLauncherRun = formatTimestamp(ev.Timestamp)
		case KindLastAutoScalerRun:
			resp.LastAutoScalerRun = formatTimestamp(ev.Timestamp)
		case KindLauncherAction:
			launcher = append(launcher, ev)
		case KindAutoScalerAction:
			autoScaler = append(autoScaler, ev)
		}
	}

	resp.LauncherActionItems = toActionItems(launcher)
	resp.AutoScalerActionItems = toActionItems(autoScaler)
	return resp
}

func toActionItems(events []GroupEvent) []ActionItem {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
	items := make([]ActionItem, 0, len(events))
	for _, ev := range events {
		items = append(items, ActionItem{
			Timestamp: formatTimestamp(ev.Timestamp),
			Action:    ev.Payload,
		})
	}
	return items
}
