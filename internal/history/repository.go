// Package history keeps a queryable trail of past resolutions.
//
// Storage is a local SQLite database. Every resolution is written with its
// attempt trail so operators can see which actions ran, in which cycle, and
// how long each took.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Repository defines the persistence interface for resolution history.
type Repository interface {
	// Record stores a finished resolution and its attempt trail.
	Record(ctx context.Context, res models.Resolution) error

	// Get returns one resolution by ID, or nil when absent.
	Get(ctx context.Context, id string) (*models.Resolution, error)

	// ListRecent returns the newest n resolutions, newest first.
	ListRecent(ctx context.Context, n int) ([]models.Resolution, error)

	// Summarize aggregates attempts per action since the given time.
	Summarize(ctx context.Context, since time.Time) ([]ActionSummary, error)

	// DeleteOlderThan removes resolutions started more than d ago and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, d time.Duration) (int64, error)

	Close() error
}

// SQLiteRepository implements Repository backed by a local SQLite database.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenAt creates or opens a SQLite database at the given path.
// The parent directory is created if it does not exist.
func OpenAt(path string) (*SQLiteRepository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("history: failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	r := &SQLiteRepository{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS resolutions (
			id          TEXT    PRIMARY KEY,
			target_id   TEXT    NOT NULL DEFAULT '',
			status      TEXT    NOT NULL,
			action      TEXT    NOT NULL DEFAULT '',
			cycles      INTEGER NOT NULL DEFAULT 0,
			started_at  TEXT    NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			baseline_fp TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_resolutions_started ON resolutions(started_at);
		CREATE TABLE IF NOT EXISTS attempts (
			resolution_id TEXT    NOT NULL REFERENCES resolutions(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			action        TEXT    NOT NULL,
			cycle         INTEGER NOT NULL,
			succeeded     INTEGER NOT NULL,
			duration_ns   INTEGER NOT NULL DEFAULT 0,
			error         TEXT    NOT NULL DEFAULT '',
			fingerprint   TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (resolution_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_action ON attempts(action);
	`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migration failed: %w", err)
	}
	// Databases created before fingerprints were recorded lack these columns.
	if err := r.addColumn("resolutions", "baseline_fp"); err != nil {
		return err
	}
	return r.addColumn("attempts", "fingerprint")
}

// addColumn adds a TEXT column to table unless it already exists.
func (r *SQLiteRepository) addColumn(table, column string) error {
	rows, err := r.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("history: inspect %s: %w", table, err)
	}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("history: inspect %s: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT ''`, table, column)
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("history: add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Record inserts the resolution and its trail in one transaction.
func (r *SQLiteRepository) Record(ctx context.Context, res models.Resolution) error {
	if res.ID == "" {
		return errors.New("history: resolution has no id")
	}
	started := res.StartedAt
	if started.IsZero() {
		started = r.now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolutions (id, target_id, status, action, cycles, started_at, duration_ns, baseline_fp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.TargetID, string(res.Status), res.Action, res.Cycles,
		started.UTC().Format(timeLayout), int64(res.Duration), res.BaselineFingerprint,
	)
	if err != nil {
		return fmt.Errorf("history: insert resolution failed: %w", err)
	}

	for i, a := range res.Trail {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attempts (resolution_id, seq, action, cycle, succeeded, duration_ns, error, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, i, a.Action, a.Cycle, a.Succeeded, int64(a.Duration), a.Err, a.Fingerprint,
		)
		if err != nil {
			return fmt.Errorf("history: insert attempt failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Get retrieves a single resolution by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Resolution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, target_id, status, action, cycles, started_at, duration_ns, baseline_fp
		FROM resolutions WHERE id = ?`, id)
	res, err := scanResolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: query failed: %w", err)
	}
	if err := r.loadTrails(ctx, []*models.Resolution{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// ListRecent returns the most recent n resolutions.
func (r *SQLiteRepository) ListRecent(ctx context.Context, n int) ([]models.Resolution, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, target_id, status, action, cycles, started_at, duration_ns, baseline_fp
		FROM resolutions ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query failed: %w", err)
	}
	var list []*models.Resolution
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("history: scan failed: %w", err)
		}
		list = append(list, res)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadTrails(ctx, list); err != nil {
		return nil, err
	}

	out := make([]models.Resolution, 0, len(list))
	for _, res := range list {
		out = append(out, *res)
	}
	return out, nil
}

// DeleteOlderThan removes resolutions (and, by cascade, their attempts)
// started before now-d.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, d time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-d).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, `DELETE FROM resolutions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: delete failed: %w", err)
	}
	return result.RowsAffected()
}

// Close releases database resources.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) loadTrails(ctx context.Context, list []*models.Resolution) error {
	for _, res := range list {
		rows, err := r.db.QueryContext(ctx, `
			SELECT action, cycle, succeeded, duration_ns, error, fingerprint
			FROM attempts WHERE resolution_id = ? ORDER BY seq`, res.ID)
		if err != nil {
			return fmt.Errorf("history: attempts query failed: %w", err)
		}
		for rows.Next() {
			var (
				a  models.AttemptOutcome
				ns int64
			)
			if err := rows.Scan(&a.Action, &a.Cycle, &a.Succeeded, &ns, &a.Err, &a.Fingerprint); err != nil {
				rows.Close()
				return fmt.Errorf("history: attempts scan failed: %w", err)
			}
			a.Duration = time.Duration(ns)
			res.Trail = append(res.Trail, a)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResolution(row scanner) (*models.Resolution, error) {
	var (
		res     models.Resolution
		status  string
		started string
		ns      int64
	)
	if err := row.Scan(&res.ID, &res.TargetID, &status, &res.Action, &res.Cycles, &started, &ns, &res.BaselineFingerprint); err != nil {
		return nil, err
	}
	res.Status = models.ResolutionStatus(status)
	res.StartedAt, _ = time.Parse(timeLayout, started)
	res.Duration = time.Duration(ns)
	return &res, nil
}
