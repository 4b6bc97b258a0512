package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Executor performs the corrective interaction for one action against a target.
type Executor interface {
	Run(ctx context.Context, target models.Target) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, target models.Target) error

// Run implements Executor.
func (f ExecutorFunc) Run(ctx context.Context, target models.Target) error {
	return f(ctx, target)
}

type registeredAction struct {
	action   models.Action
	executor Executor
}

// Registry holds the catalog of actions, their executors and running statistics.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	actions map[string]*registeredAction
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*registeredAction)}
}

// Register adds an action bound to its executor. Counters on the supplied
// action are kept, so previously persisted statistics can be registered
// directly.
func (r *Registry) Register(action models.Action, executor Executor) error {
	if action.Name == "" {
		return fmt.Errorf("register: empty action name: %w", ErrUnknownAction)
	}
	if executor == nil {
		return fmt.Errorf("register %q: no executor bound: %w", action.Name, ErrUnknownAction)
	}
	clampCounters(&action)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[action.Name]; ok {
		return fmt.Errorf("register %q: %w", action.Name, ErrDuplicateAction)
	}
	r.actions[action.Name] = &registeredAction{action: action, executor: executor}
	r.order = append(r.order, action.Name)
	return nil
}

// RecordOutcome increments the attempt counter for name and, when succeeded,
// the success counter.
func (r *Registry) RecordOutcome(name string, succeeded bool) (models.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.actions[name]
	if !ok {
		return models.Action{}, fmt.Errorf("record outcome %q: %w", name, ErrUnknownAction)
	}
	entry.action.Attempts++
	if succeeded {
		entry.action.Successes++
	}
	return entry.action, nil
}

// EnabledActions returns a copy of the enabled actions in registration order.
func (r *Registry) EnabledActions() []models.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Action, 0, len(r.order))
	for _, name := range r.order {
		if a := r.actions[name].action; a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Actions returns a copy of every registered action in registration order.
func (r *Registry) Actions() []models.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name].action)
	}
	return out
}

// Get returns a copy of the named action.
func (r *Registry) Get(name string) (models.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.actions[name]
	if !ok {
		return models.Action{}, false
	}
	return entry.action, true
}

// Executor returns the executor bound to name.
func (r *Registry) Executor(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("executor %q: %w", name, ErrUnknownAction)
	}
	return entry.executor, nil
}

// SetEnabled toggles whether the Selector sees the named action.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.actions[name]
	if !ok {
		return fmt.Errorf("set enabled %q: %w", name, ErrUnknownAction)
	}
	entry.action.Enabled = enabled
	return nil
}

// Records exports every action as a flat record.
func (r *Registry) Records() []models.ActionRecord {
	actions := r.Actions()
	out := make([]models.ActionRecord, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Record())
	}
	return out
}

// Restore merges persisted counters into registered actions. Priority and
// enabled flags stay as registered so the catalog remains authoritative.
// Names that are not registered are returned.
func (r *Registry) Restore(records []models.ActionRecord) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var skipped []string
	for _, rec := range records {
		entry, ok := r.actions[rec.Name]
		if !ok {
			skipped = append(skipped, rec.Name)
			continue
		}
		entry.action.Attempts = rec.Attempts
		entry.action.Successes = rec.Successes
		clampCounters(&entry.action)
	}
	return skipped
}

func clampCounters(a *models.Action) {
	if a.Attempts < 0 {
		a.Attempts = 0
	}
	if a.Successes < 0 {
		a.Successes = 0
	}
	if a.Successes > a.Attempts {
		a.Successes = a.Attempts
	}
}
