package engine

import "time"

// State is a Controller lifecycle state.
type State string

const (
	StateIdle             State = "IDLE"
	StateBaselineCaptured State = "BASELINE_CAPTURED"
	StateSelecting        State = "SELECTING"
	StateExecuting        State = "EXECUTING"
	StateVerifying        State = "VERIFYING"
	StateResolvedSuccess  State = "RESOLVED_SUCCESS"
	StateResolvedFailure  State = "RESOLVED_FAILURE"
)

// Terminal reports whether s ends a resolution.
func (s State) Terminal() bool {
	return s == StateResolvedSuccess || s == StateResolvedFailure
}

// Status is a read-only view of what the Controller is doing. It is a value
// copy, safe to hand to status displays on other goroutines.
type Status struct {
	State        State
	ResolutionID string
	TargetID     string
	Action       string
	Cycle        int
	UpdatedAt    time.Time
}
