package models

import "github.com/miradorstack/mirador-remedy/internal/utils"

// Action is a named corrective strategy together with its running statistics.
type Action struct {
	Name      string
	Priority  int
	Enabled   bool
	Attempts  int
	Successes int
}

// SuccessRate returns successes/attempts, or 0 before the first attempt.
func (a Action) SuccessRate() float64 {
	return utils.Ratio(a.Successes, a.Attempts)
}

// Record converts the action into its flat persisted form.
func (a Action) Record() ActionRecord {
	return ActionRecord{
		Name:      a.Name,
		Priority:  a.Priority,
		Enabled:   a.Enabled,
		Attempts:  a.Attempts,
		Successes: a.Successes,
	}
}

// ActionRecord is the flat representation of an action's counters used by
// state stores and API payloads.
type ActionRecord struct {
	Name      string `yaml:"name" json:"name" msgpack:"name"`
	Priority  int    `yaml:"priority" json:"priority" msgpack:"priority"`
	Enabled   bool   `yaml:"enabled" json:"enabled" msgpack:"enabled"`
	Attempts  int    `yaml:"attempts" json:"attempts" msgpack:"attempts"`
	Successes int    `yaml:"successes" json:"successes" msgpack:"successes"`
}

// Action converts a record back into an Action.
func (r ActionRecord) Action() Action {
	return Action{
		Name:      r.Name,
		Priority:  r.Priority,
		Enabled:   r.Enabled,
		Attempts:  r.Attempts,
		Successes: r.Successes,
	}
}
