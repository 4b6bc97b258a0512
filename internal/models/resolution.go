package models

import (
	"time"

	"github.com/miradorstack/mirador-remedy/internal/utils"
)

// ResolutionStatus is the terminal state of a trigger-event resolution.
type ResolutionStatus string

const (
	ResolutionSuccess  ResolutionStatus = "success"
	ResolutionFailure  ResolutionStatus = "failure"
	ResolutionCanceled ResolutionStatus = "canceled"
)

// AttemptOutcome is the result of a single action invocation.
type AttemptOutcome struct {
	Action    string        `json:"action"`
	Cycle     int           `json:"cycle"`
	Succeeded bool          `json:"succeeded"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
	// Fingerprint identifies the post-action capture, empty when none was taken.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Resolution summarises the handling of one trigger event.
type Resolution struct {
	ID        string
	TargetID  string
	Status    ResolutionStatus
	Action    string
	Cycles    int
	Trail     []AttemptOutcome
	StartedAt time.Time
	Duration  time.Duration
	// BaselineFingerprint identifies the pre-action capture, empty when none was taken.
	BaselineFingerprint string
}

// Attempts returns the number of action invocations in the trail.
func (r Resolution) Attempts() int {
	return len(r.Trail)
}

// SessionTotals is a point-in-time copy of the session counters.
type SessionTotals struct {
	SessionID      string
	StartedAt      time.Time
	TotalTriggers  int
	TotalSuccesses int
}

// SuccessRatio returns successes/triggers, or 0 before the first trigger.
func (t SessionTotals) SuccessRatio() float64 {
	return utils.Ratio(t.TotalSuccesses, t.TotalTriggers)
}
