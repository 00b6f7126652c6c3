package models

import "time"

type RunState string

const (
	StateStopped     RunState = "stopped"
	StateStarting    RunState = "starting"
	StateRunning     RunState = "running"
	StateStopping    RunState = "stopping"
	StateFailedStart RunState = "failed_start"
)

// HolderInfo describes who owns the exclusive resource.
type HolderInfo struct {
	Holder *string    `json:"holder"`
	Since  *time.Time `json:"since,omitempty"`
}

// RunningInfo is a read-only view of one running service record.
type RunningInfo struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"startedAt"`
	Orphaned  bool      `json:"orphaned"`
}
