package engine

import (
	"testing"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

func names(actions []models.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Name)
	}
	return out
}

func equalNames(t *testing.T, got []models.Action, want ...string) {
	t.Helper()
	gotNames := names(got)
	if len(gotNames) != len(want) {
		t.Fatalf("expected %v, got %v", want, gotNames)
	}
	for i := range want {
		if gotNames[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, gotNames)
		}
	}
}

func TestRankByRateThenPriority(t *testing.T) {
	actions := []models.Action{
		{Name: "A", Priority: 2, Attempts: 5, Successes: 4},
		{Name: "B", Priority: 1, Attempts: 10, Successes: 8},
		{Name: "C", Priority: 1, Attempts: 2, Successes: 1},
	}
	equalNames(t, Rank(actions), "B", "A", "C")
	equalNames(t, actions, "A", "B", "C")
}

func TestRankColdStartUsesPriority(t *testing.T) {
	actions := []models.Action{
		{Name: "click", Priority: 3},
		{Name: "keyboard", Priority: 1},
		{Name: "swipe", Priority: 2},
	}
	equalNames(t, Rank(actions), "keyboard", "swipe", "click")
}

func TestRankStableOnEqualKeys(t *testing.T) {
	actions := []models.Action{
		{Name: "first", Priority: 1},
		{Name: "second", Priority: 1},
		{Name: "third", Priority: 1},
	}
	for i := 0; i < 10; i++ {
		equalNames(t, Rank(actions), "first", "second", "third")
	}
}
