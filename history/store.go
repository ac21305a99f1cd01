// Package history persists run ledgers and capture metadata to a
// dedicated SQLite database. The controller goroutine owns all writes;
// workers never touch the store directly.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/velocitylabs/vcollect/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL,
    job_slug        TEXT NOT NULL,
    batch_name      TEXT NOT NULL DEFAULT '',
    started_at      TEXT NOT NULL,
    completed_at    TEXT,
    status          TEXT NOT NULL DEFAULT 'running',
    total_devices   INTEGER NOT NULL DEFAULT 0,
    success_count   INTEGER NOT NULL DEFAULT 0,
    failed_count    INTEGER NOT NULL DEFAULT 0,
    skipped_count   INTEGER NOT NULL DEFAULT 0,
    error_text      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_job_runs_slug ON job_runs(job_slug, started_at);

CREATE TABLE IF NOT EXISTS captures (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    job_run_id   INTEGER NOT NULL REFERENCES job_runs(id) ON DELETE CASCADE,
    device_id    INTEGER NOT NULL,
    device_name  TEXT NOT NULL,
    capture_kind TEXT NOT NULL DEFAULT '',
    file_path    TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL DEFAULT 0,
    score        REAL NOT NULL DEFAULT 0,
    captured_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_run ON captures(job_run_id);
`

// Run is one job run ledger row.
type Run struct {
	ID        int64
	RunID     string
	JobSlug   string
	BatchName string

	StartedAt   time.Time
	CompletedAt time.Time

	Status types.RunStatus

	Total   int
	Success int
	Failed  int
	Skipped int

	Err string
}

// Capture is one persisted device transcript.
type Capture struct {
	ID         int64
	JobRunID   int64
	DeviceID   int64
	DeviceName string
	Kind       string
	Path       string
	Bytes      int64
	Score      float64
	CapturedAt time.Time
}

// Store wraps the history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history db %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

// StartRun inserts a running ledger row and returns its id.
func (s *Store) StartRun(ctx context.Context, runID, jobSlug, batchName string, total int, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs (run_id, job_slug, batch_name, started_at, status, total_devices)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, jobSlug, batchName, startedAt.UTC().Format(timeLayout), types.StatusRunning, total)
	if err != nil {
		return 0, types.NewDeviceError(types.ErrKindPersistence, "history.start", "", err)
	}
	return res.LastInsertId()
}

// CompleteRun finalizes a ledger row exactly once. Completing an
// already-completed row is an error.
func (s *Store) CompleteRun(ctx context.Context, id int64, result *types.RunResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_runs
		 SET completed_at = ?, status = ?, total_devices = ?,
		     success_count = ?, failed_count = ?, skipped_count = ?, error_text = ?
		 WHERE id = ? AND completed_at IS NULL`,
		result.CompletedAt.UTC().Format(timeLayout), result.Status, result.Total,
		result.Success, result.Failed, result.Skipped, result.Err, id)
	if err != nil {
		return types.NewDeviceError(types.ErrKindPersistence, "history.complete", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NewDeviceError(types.ErrKindPersistence, "history.complete", "",
			fmt.Errorf("run %d already completed or missing", id))
	}
	return nil
}

// AddCapture records a persisted transcript under its run.
func (s *Store) AddCapture(ctx context.Context, c Capture) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (job_run_id, device_id, device_name, capture_kind, file_path, size_bytes, score, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.JobRunID, c.DeviceID, c.DeviceName, c.Kind, c.Path, c.Bytes, c.Score,
		c.CapturedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, types.NewDeviceError(types.ErrKindPersistence, "history.capture", c.DeviceName, err)
	}
	return res.LastInsertId()
}

// RecentRuns returns the latest runs for a job slug, newest first. An
// empty slug returns runs across all jobs.
func (s *Store) RecentRuns(ctx context.Context, jobSlug string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, run_id, job_slug, batch_name, started_at, completed_at, status,
	                 total_devices, success_count, failed_count, skipped_count, error_text
	          FROM job_runs`
	var args []any
	if jobSlug != "" {
		query += ` WHERE job_slug = ?`
		args = append(args, jobSlug)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RunByID fetches one ledger row.
func (s *Store) RunByID(ctx context.Context, id int64) (Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, job_slug, batch_name, started_at, completed_at, status,
		        total_devices, success_count, failed_count, skipped_count, error_text
		 FROM job_runs WHERE id = ?`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query run %d: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Run{}, fmt.Errorf("run %d: %w", id, sql.ErrNoRows)
	}
	return scanRun(rows)
}

// Captures returns the capture rows for a run, oldest first.
func (s *Store) Captures(ctx context.Context, runID int64) ([]Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_run_id, device_id, device_name, capture_kind, file_path, size_bytes, score, captured_at
		 FROM captures WHERE job_run_id = ? ORDER BY captured_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query captures for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var capturedAt string
		if err := rows.Scan(&c.ID, &c.JobRunID, &c.DeviceID, &c.DeviceName, &c.Kind,
			&c.Path, &c.Bytes, &c.Score, &capturedAt); err != nil {
			return nil, fmt.Errorf("scan capture row: %w", err)
		}
		c.CapturedAt, _ = time.Parse(timeLayout, capturedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var startedAt string
	var completedAt sql.NullString
	var status string
	if err := rows.Scan(&run.ID, &run.RunID, &run.JobSlug, &run.BatchName,
		&startedAt, &completedAt, &status,
		&run.Total, &run.Success, &run.Failed, &run.Skipped, &run.Err); err != nil {
		return Run{}, fmt.Errorf("scan run row: %w", err)
	}
	run.Status = types.RunStatus(status)
	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if completedAt.Valid {
		run.CompletedAt, _ = time.Parse(timeLayout, completedAt.String)
	}
	return run, nil
}
