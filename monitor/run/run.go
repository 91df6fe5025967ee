// Package run tracks the lifecycle and metrics of workflow executions.
package run

import (
	"time"
)

// Status is the current state of a run. Transitions are monotonic:
// pending -> running -> completed | failed. Terminal states are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canTransition reports whether a status change is allowed.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Counters aggregates per-run metrics.
type Counters struct {
	EntitiesProcessed int `json:"entities_processed"`
	SignalsFound      int `json:"signals_found"`
	SignalsNew        int `json:"signals_new"`
	NotificationsSent int `json:"notifications_sent"`
}

// Run is one execution instance of the monitoring workflow, scheduled or
// manual. Manual runs have no schedule ID.
type Run struct {
	ID           string
	ScheduleID   string // empty for manual runs
	Status       Status
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Counters     Counters
	ErrorMessage string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
