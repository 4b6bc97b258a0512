package engine

import (
	"sync"
	"testing"
	"time"
)

func TestSessionStatsCountsAndRatio(t *testing.T) {
	s := NewSessionStats()
	if s.SuccessRatio() != 0 {
		t.Fatalf("expected zero ratio before first trigger")
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.OnTrigger()
			if i%4 == 0 {
				s.OnSuccess()
			}
		}(i)
	}
	wg.Wait()

	totals := s.Totals()
	if totals.TotalTriggers != 40 || totals.TotalSuccesses != 10 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if ratio := s.SuccessRatio(); ratio != 0.25 {
		t.Fatalf("expected 0.25, got %f", ratio)
	}
}

func TestSessionStatsResetStartsNewSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSessionStats()
	s.now = func() time.Time { return now }
	s.Reset()
	first := s.Totals().SessionID
	s.OnTrigger()

	now = now.Add(90 * time.Second)
	if up := s.Uptime(); up != 90*time.Second {
		t.Fatalf("expected 90s uptime, got %v", up)
	}

	s.Reset()
	totals := s.Totals()
	if totals.SessionID == first || totals.SessionID == "" {
		t.Fatalf("expected a fresh session id")
	}
	if totals.TotalTriggers != 0 || !totals.StartedAt.Equal(now) {
		t.Fatalf("reset did not clear session: %+v", totals)
	}
}
