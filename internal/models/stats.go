package models

import "time"

// StatsReport is the detailed statistics view: session counters, uptime and
// every action ordered by success rate.
type StatsReport struct {
	Session    SessionTotals
	Uptime     time.Duration
	Actions    []Action
	AttemptP50 time.Duration
	AttemptP95 time.Duration
}
