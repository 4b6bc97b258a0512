package engine

import (
	"errors"
	"fmt"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

var (
	// ErrDuplicateAction is returned when an action name is registered twice.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrUnknownAction is returned for names that are not registered, or that
	// cannot be bound to an executor.
	ErrUnknownAction = errors.New("unknown action")
	// ErrNoActionsAvailable is returned when a trigger arrives and no action is enabled.
	ErrNoActionsAvailable = errors.New("no actions available")
	// ErrResolutionCanceled is returned when a resolution stops on an external cancel signal.
	ErrResolutionCanceled = errors.New("resolution canceled")
)

// CollaboratorError wraps a failure reported by an external collaborator
// (capture, execution, classification).
type CollaboratorError struct {
	Op     string
	Action string
	Err    error
}

func (e *CollaboratorError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Action, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// ResolutionExhaustedError is returned when every action in every cycle
// failed. Trail holds each attempt in execution order.
type ResolutionExhaustedError struct {
	Cycles int
	Trail  []models.AttemptOutcome
}

func (e *ResolutionExhaustedError) Error() string {
	return fmt.Sprintf("resolution exhausted after %d cycles (%d attempts)", e.Cycles, len(e.Trail))
}
