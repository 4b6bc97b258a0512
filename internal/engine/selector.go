package engine

import (
	"sort"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Rank orders actions by descending success rate, then ascending priority.
// Ties keep their input order, which for registry snapshots is registration
// order. The input slice is not modified.
func Rank(actions []models.Action) []models.Action {
	ranked := append([]models.Action(nil), actions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].SuccessRate(), ranked[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return ranked[i].Priority < ranked[j].Priority
	})
	return ranked
}
