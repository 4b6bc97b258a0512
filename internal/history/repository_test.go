package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

func tempRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := OpenAt(filepath.Join(t.TempDir(), "history", "remedy.db"))
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

var base = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func resolution(id string, started time.Time, status models.ResolutionStatus, trail ...models.AttemptOutcome) models.Resolution {
	res := models.Resolution{
		ID:        id,
		TargetID:  "window-1",
		Status:    status,
		Cycles:    1,
		Trail:     trail,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
	if status == models.ResolutionSuccess && len(trail) > 0 {
		res.Action = trail[len(trail)-1].Action
	}
	return res
}

func TestRecordAndGet(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	want := resolution("01J0000000000000000000000A", base, models.ResolutionSuccess,
		models.AttemptOutcome{Action: "enhanced_keyboard", Cycle: 1, Duration: 120 * time.Millisecond, Err: "execute enhanced_keyboard: focus lost"},
		models.AttemptOutcome{Action: "mouse_swipe_up", Cycle: 1, Succeeded: true, Duration: 700 * time.Millisecond, Fingerprint: "9f2c"},
	)
	want.BaselineFingerprint = "41ab"
	if err := r.Record(ctx, want); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := r.Get(ctx, want.ID)
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Fatalf("resolution mismatch (-want +got):\n%s", diff)
	}

	missing, err := r.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing id, got %+v, %v", missing, err)
	}
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	res := resolution("dup", base, models.ResolutionFailure)
	if err := r.Record(ctx, res); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := r.Record(ctx, res); err == nil {
		t.Fatalf("expected primary key violation")
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		res := resolution(id, base.Add(time.Duration(i)*time.Minute), models.ResolutionFailure,
			models.AttemptOutcome{Action: "mouse_click_next", Cycle: 1})
		if err := r.Record(ctx, res); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	list, err := r.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if len(list[0].Trail) != 1 {
		t.Fatalf("expected trail to be loaded")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	r := tempRepo(t)
	r.now = func() time.Time { return base.Add(48 * time.Hour) }
	ctx := context.Background()

	old := resolution("old", base, models.ResolutionFailure, models.AttemptOutcome{Action: "x", Cycle: 1})
	fresh := resolution("fresh", base.Add(47*time.Hour), models.ResolutionSuccess, models.AttemptOutcome{Action: "x", Cycle: 1, Succeeded: true})
	for _, res := range []models.Resolution{old, fresh} {
		if err := r.Record(ctx, res); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := r.DeleteOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}
	if got, _ := r.Get(ctx, "old"); got != nil {
		t.Fatalf("old resolution still present")
	}

	var orphans int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE resolution_id = 'old'`).Scan(&orphans); err != nil {
		t.Fatalf("count: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("attempts were not cascaded, %d left", orphans)
	}
}

func TestSummarize(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	records := []models.Resolution{
		resolution("r1", base, models.ResolutionSuccess,
			models.AttemptOutcome{Action: "keyboard", Cycle: 1, Duration: 100 * time.Millisecond},
			models.AttemptOutcome{Action: "swipe", Cycle: 1, Succeeded: true, Duration: 300 * time.Millisecond}),
		resolution("r2", base.Add(time.Minute), models.ResolutionSuccess,
			models.AttemptOutcome{Action: "swipe", Cycle: 1, Succeeded: true, Duration: 500 * time.Millisecond}),
		resolution("r3", base.Add(-time.Hour), models.ResolutionFailure,
			models.AttemptOutcome{Action: "click", Cycle: 1}),
	}
	for _, res := range records {
		if err := r.Record(ctx, res); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	summary, err := r.Summarize(ctx, base)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	want := []ActionSummary{
		{Action: "swipe", Attempts: 2, Successes: 2, AvgDuration: 400 * time.Millisecond, LastUsed: base.Add(time.Minute)},
		{Action: "keyboard", Attempts: 1, Successes: 0, AvgDuration: 100 * time.Millisecond, LastUsed: base},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAtUpgradesSchemaWithoutFingerprints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE resolutions (
			id          TEXT    PRIMARY KEY,
			target_id   TEXT    NOT NULL DEFAULT '',
			status      TEXT    NOT NULL,
			action      TEXT    NOT NULL DEFAULT '',
			cycles      INTEGER NOT NULL DEFAULT 0,
			started_at  TEXT    NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE attempts (
			resolution_id TEXT    NOT NULL REFERENCES resolutions(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			action        TEXT    NOT NULL,
			cycle         INTEGER NOT NULL,
			succeeded     INTEGER NOT NULL,
			duration_ns   INTEGER NOT NULL DEFAULT 0,
			error         TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (resolution_id, seq)
		);
		INSERT INTO resolutions (id, status, started_at) VALUES ('legacy', 'failure', '2026-04-01T00:00:00.000000000Z');
		INSERT INTO attempts (resolution_id, seq, action, cycle, succeeded) VALUES ('legacy', 0, 'x', 1, 0);`)
	if err != nil {
		t.Fatalf("seed old schema: %v", err)
	}
	db.Close()

	r, err := OpenAt(path)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	legacy, err := r.Get(ctx, "legacy")
	if err != nil || legacy == nil {
		t.Fatalf("Get legacy: %+v, %v", legacy, err)
	}
	if legacy.BaselineFingerprint != "" || legacy.Trail[0].Fingerprint != "" {
		t.Fatalf("expected empty fingerprints on upgraded rows, got %+v", legacy)
	}

	fresh := resolution("fresh", base, models.ResolutionSuccess,
		models.AttemptOutcome{Action: "x", Cycle: 1, Succeeded: true, Fingerprint: "beef"})
	fresh.BaselineFingerprint = "cafe"
	if err := r.Record(ctx, fresh); err != nil {
		t.Fatalf("record after upgrade: %v", err)
	}
	got, _ := r.Get(ctx, "fresh")
	if got == nil || got.BaselineFingerprint != "cafe" || got.Trail[0].Fingerprint != "beef" {
		t.Fatalf("fingerprints not stored after upgrade: %+v", got)
	}

	// A second open must not try to add the columns again.
	r2, err := OpenAt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r2.Close()
}
