package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

func noopExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, target models.Target) error { return nil })
}

func mustRegister(t *testing.T, reg *Registry, action models.Action, exec Executor) {
	t.Helper()
	if exec == nil {
		exec = noopExecutor()
	}
	if err := reg.Register(action, exec); err != nil {
		t.Fatalf("register %s: %v", action.Name, err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, models.Action{Name: "keyboard", Priority: 1, Enabled: true}, nil)

	err := reg.Register(models.Action{Name: "keyboard", Priority: 2}, noopExecutor())
	if !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("expected ErrDuplicateAction, got %v", err)
	}
}

func TestRegistryRequiresExecutor(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(models.Action{Name: "swipe", Priority: 1}, nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction for missing executor, got %v", err)
	}
	if len(reg.Actions()) != 0 {
		t.Fatalf("failed registration must not add the action")
	}
}

func TestRecordOutcomeUnknownAction(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.RecordOutcome("missing", true); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRecordOutcomeKeepsCountersConsistent(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, models.Action{Name: "a", Priority: 1, Enabled: true}, nil)
	mustRegister(t, reg, models.Action{Name: "b", Priority: 2, Enabled: true}, nil)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		name := "a"
		if rng.Intn(2) == 1 {
			name = "b"
		}
		if _, err := reg.RecordOutcome(name, rng.Intn(3) == 0); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
		for _, a := range reg.Actions() {
			if a.Successes > a.Attempts {
				t.Fatalf("%s: successes %d > attempts %d", a.Name, a.Successes, a.Attempts)
			}
			rate := a.SuccessRate()
			if rate < 0 || rate > 1 {
				t.Fatalf("%s: rate %f out of range", a.Name, rate)
			}
			if want := float64(a.Successes) / float64(max(a.Attempts, 1)); a.Attempts > 0 && rate != want {
				t.Fatalf("%s: rate %f, want %f", a.Name, rate, want)
			}
		}
	}
}

func TestSuccessRateZeroWithoutAttempts(t *testing.T) {
	if rate := (models.Action{Name: "idle"}).SuccessRate(); rate != 0 {
		t.Fatalf("expected 0, got %f", rate)
	}
}

func TestEnabledActionsSnapshotIsStable(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, models.Action{Name: "a", Priority: 1, Enabled: true}, nil)
	mustRegister(t, reg, models.Action{Name: "off", Priority: 2, Enabled: false}, nil)
	mustRegister(t, reg, models.Action{Name: "c", Priority: 3, Enabled: true}, nil)

	first := reg.EnabledActions()
	second := reg.EnabledActions()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("snapshots differ (-first +second):\n%s", diff)
	}
	if len(first) != 2 || first[0].Name != "a" || first[1].Name != "c" {
		t.Fatalf("unexpected enabled set: %+v", first)
	}

	first[0].Attempts = 99
	if got, _ := reg.Get("a"); got.Attempts != 0 {
		t.Fatalf("snapshot mutation leaked into registry")
	}
}

func TestSetEnabledHidesAction(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, models.Action{Name: "a", Priority: 1, Enabled: true}, nil)
	if err := reg.SetEnabled("a", false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if len(reg.EnabledActions()) != 0 {
		t.Fatalf("expected no enabled actions")
	}
	if err := reg.SetEnabled("nope", true); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRestoreMergesCounters(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, models.Action{Name: "a", Priority: 1, Enabled: true}, nil)
	mustRegister(t, reg, models.Action{Name: "b", Priority: 2, Enabled: false}, nil)

	skipped := reg.Restore([]models.ActionRecord{
		{Name: "a", Priority: 7, Enabled: false, Attempts: 10, Successes: 4},
		{Name: "b", Attempts: 2, Successes: 5},
		{Name: "gone", Attempts: 1},
	})
	if diff := cmp.Diff([]string{"gone"}, skipped); diff != "" {
		t.Fatalf("skipped mismatch:\n%s", diff)
	}

	want := []models.ActionRecord{
		{Name: "a", Priority: 1, Enabled: true, Attempts: 10, Successes: 4},
		{Name: "b", Priority: 2, Enabled: false, Attempts: 2, Successes: 2},
	}
	if diff := cmp.Diff(want, reg.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}
