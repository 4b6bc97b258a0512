package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

// SessionStats aggregates trigger and success counters for a monitoring run.
type SessionStats struct {
	mu        sync.Mutex
	sessionID string
	startedAt time.Time
	triggers  int
	successes int
	now       func() time.Time
}

// NewSessionStats starts a new session.
func NewSessionStats() *SessionStats {
	s := &SessionStats{now: time.Now}
	s.Reset()
	return s
}

// OnTrigger counts a trigger event.
func (s *SessionStats) OnTrigger() {
	s.mu.Lock()
	s.triggers++
	s.mu.Unlock()
}

// OnSuccess counts a successful resolution.
func (s *SessionStats) OnSuccess() {
	s.mu.Lock()
	s.successes++
	s.mu.Unlock()
}

// Totals returns a copy of the counters.
func (s *SessionStats) Totals() models.SessionTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionTotals{
		SessionID:      s.sessionID,
		StartedAt:      s.startedAt,
		TotalTriggers:  s.triggers,
		TotalSuccesses: s.successes,
	}
}

// SuccessRatio returns successes/triggers, 0 before the first trigger.
func (s *SessionStats) SuccessRatio() float64 {
	return s.Totals().SuccessRatio()
}

// Uptime returns the time elapsed since the session started.
func (s *SessionStats) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.startedAt)
}

// Reset zeroes the counters and starts a new session.
func (s *SessionStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = uuid.NewString()
	s.startedAt = s.now()
	s.triggers = 0
	s.successes = 0
}
