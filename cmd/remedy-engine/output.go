package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// table writes tab-aligned rows under a styled title. Styled cells carry
// escape sequences, so only the last column of a row may be styled.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, title string, header ...string) *table {
	fmt.Fprintln(out, titleStyle.Render(title))
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)}
	t.row(header...)
	return t
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) flush() {
	t.w.Flush()
}

func renderOutcome(status string) string {
	switch status {
	case "success", "RESOLVED_SUCCESS":
		return successStyle.Render(status)
	case "failure", "failed", "canceled", "RESOLVED_FAILURE":
		return failureStyle.Render(status)
	default:
		return status
	}
}

func renderEnabled(enabled bool) string {
	if enabled {
		return successStyle.Render("yes")
	}
	return mutedStyle.Render("no")
}

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func millis(ms float64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

// str, num and flag read typed values out of a decoded Struct map.
func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func flag(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func list(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}
