package model

import "encoding/json"

// Instance types known to the autoscaler. Jibri instances carry an idle/busy
// state machine; JVB instances have no richer status model yet.
const (
	TypeJibri = "jibri"
	TypeJVB   = "JVB"
)

// Scale statuses derived from the tracked view of an instance.
const (
	ScaleStatusUnknown      = "unknown"
	ScaleStatusProvisioning = "PROVISIONING"
	ScaleStatusAvailable    = "AVAILABLE"
	ScaleStatusBusy         = "BUSY"
	ScaleStatusOnline       = "online"
)

// Cloud statuses as reported by the provider inventory.
const (
	CloudStatusUnknown      = "unknown"
	CloudStatusProvisioning = "Provisioning"
	CloudStatusRunning      = "Running"
	CloudStatusShuttingDown = "ShuttingDown"
	CloudStatusTerminated   = "Terminated"
)

// Jibri busy statuses reported by the sidecar.
const (
	JibriIdle = "IDLE"
	JibriBusy = "BUSY"
)

// InstanceDetails identifies an instance across all subsystems. Immutable
// once created.
type InstanceDetails struct {
	InstanceID   string `json:"instanceId"`
	InstanceType string `json:"instanceType"`
	Cloud        string `json:"cloud,omitempty"`
	Region       string `json:"region,omitempty"`
	Group        string `json:"group"`
}

// InstanceStatus is the type-specific portion of a tracked state.
type InstanceStatus struct {
	Provisioning bool            `json:"provisioning"`
	BusyStatus   string          `json:"busyStatus,omitempty"`
	Stats        json.RawMessage `json:"stats,omitempty"`
}

// InstanceMetadata carries addressing and placement info reported alongside
// a tracked state.
type InstanceMetadata struct {
	Group     string `json:"group"`
	PrivateIP string `json:"privateIp,omitempty"`
	PublicIP  string `json:"publicIp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// InstanceState is an instance's state as last reported into the ephemeral
// store. Timestamp is unix milliseconds at write time.
type InstanceState struct {
	InstanceID     string           `json:"instanceId"`
	InstanceType   string           `json:"instanceType"`
	Status         InstanceStatus   `json:"status"`
	ShutdownStatus bool             `json:"shutdownStatus"`
	Metadata       InstanceMetadata `json:"metadata"`
	Timestamp      int64            `json:"timestamp"`
}

// StatsReport is the sidecar heartbeat payload. Stats is opaque to the core;
// it is only interpreted by the per-type tracker, if one exists.
type StatsReport struct {
	Instance  InstanceDetails `json:"instance"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

// JibriStats is the slice of a jibri stats blob the tracker understands.
type JibriStats struct {
	BusyStatus string `json:"busyStatus"`
}

// ScalingOptions is the capacity envelope of an instance group.
type ScalingOptions struct {
	MinDesired   int `json:"minDesired"`
	MaxDesired   int `json:"maxDesired"`
	DesiredCount int `json:"desiredCount"`
}

// InstanceGroup is a named scaling group's configuration.
type InstanceGroup struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Cloud          string         `json:"cloud,omitempty"`
	Region         string         `json:"region,omitempty"`
	Environment    string         `json:"environment,omitempty"`
	ScalingOptions ScalingOptions `json:"scalingOptions"`
}

// InstanceReport is the reconciled per-instance view. Derived on every
// report request, never persisted.
type InstanceReport struct {
	InstanceID           string `json:"instanceId"`
	DisplayName          string `json:"displayName"`
	ScaleStatus          string `json:"scaleStatus"`
	CloudStatus          string `json:"cloudStatus"`
	IsShuttingDown       bool   `json:"isShuttingDown"`
	IsScaleDownProtected bool   `json:"isScaleDownProtected"`
	PrivateIP            string `json:"privateIp,omitempty"`
	PublicIP             string `json:"publicIp,omitempty"`
}

// GroupReport is the reconciled group-level view. All counters are folds
// over Instances.
type GroupReport struct {
	GroupName               string           `json:"groupName"`
	DesiredCount            int              `json:"desiredCount"`
	Count                   int              `json:"count"`
	CloudCount              int              `json:"cloudCount"`
	ProvisioningCount       int              `json:"provisioningCount"`
	AvailableCount          int              `json:"availableCount"`
	BusyCount               int              `json:"busyCount"`
	UnTrackedCount          int              `json:"unTrackedCount"`
	ShuttingDownCount       int              `json:"shuttingDownCount"`
	ScaleDownProtectedCount int              `json:"scaleDownProtectedCount"`
	Instances               []InstanceReport `json:"instances"`
}
