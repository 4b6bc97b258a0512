package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/utils"
)

// ActionSummary aggregates recorded attempts of one action.
type ActionSummary struct {
	Action      string
	Attempts    int
	Successes   int
	AvgDuration time.Duration
	LastUsed    time.Time
}

// SuccessRate returns successes/attempts, 0 without attempts.
func (s ActionSummary) SuccessRate() float64 {
	return utils.Ratio(s.Successes, s.Attempts)
}

// Summarize aggregates attempts of resolutions started at or after since,
// ordered by success rate then attempt count, both descending.
func (r *SQLiteRepository) Summarize(ctx context.Context, since time.Time) ([]ActionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.action,
		       COUNT(*),
		       SUM(a.succeeded),
		       CAST(AVG(a.duration_ns) AS INTEGER),
		       MAX(res.started_at)
		FROM attempts a
		JOIN resolutions res ON res.id = a.resolution_id
		WHERE res.started_at >= ?
		GROUP BY a.action`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("history: summary query failed: %w", err)
	}
	defer rows.Close()

	var out []ActionSummary
	for rows.Next() {
		var (
			s    ActionSummary
			avg  int64
			last string
		)
		if err := rows.Scan(&s.Action, &s.Attempts, &s.Successes, &avg, &last); err != nil {
			return nil, fmt.Errorf("history: summary scan failed: %w", err)
		}
		s.AvgDuration = time.Duration(avg)
		s.LastUsed, _ = time.Parse(timeLayout, last)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].SuccessRate(), out[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}
