// Package workflow is a durable, SQLite-backed workflow engine. Triggered
// events spawn runs of registered functions; each named step inside a run is
// memoized, so a retried or recovered run never repeats work that already
// succeeded.
package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning marks a run that is queued or executing.
	StatusRunning Status = "Running"
	// StatusCompleted marks a run whose handler returned an output.
	StatusCompleted Status = "Completed"
	// StatusFailed marks a run that hit a permanent error or exhausted its
	// retry budget.
	StatusFailed Status = "Failed"
)

// RunStatus is the polling view of a run, shaped for the runs API.
type RunStatus struct {
	RunID     string          `json:"run_id"`
	Function  string          `json:"function"`
	Status    Status          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

// Terminal reports whether the run reached a final state.
func (s RunStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Store persists events, runs, and step outputs in a local SQLite database.
// Safe for concurrent use; writes serialize on a single connection.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default workflow database location,
// ~/.rag/workflows.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("workflow: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".rag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("workflow: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "workflows.db"), nil
}

// OpenStore opens (or creates) the workflow database at path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenStore(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("workflow: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    payload    TEXT NOT NULL,
    created_at INTEGER NOT NULL  -- Unix timestamp (seconds)
);

CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    event_id   TEXT NOT NULL REFERENCES events(id),
    function   TEXT NOT NULL,
    status     TEXT NOT NULL CHECK(status IN ('Running','Completed','Failed')),
    output     TEXT,
    error      TEXT,
    attempt    INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_event ON runs (event_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status);

CREATE TABLE IF NOT EXISTS steps (
    run_id     TEXT NOT NULL REFERENCES runs(id),
    name       TEXT NOT NULL,
    output     TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, name)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("workflow: migrate: %w", err)
	}
	return nil
}

// insertEvent persists a triggered event and its JSON payload.
func (s *Store) insertEvent(ctx context.Context, id, name string, payload []byte) error {
	const q = `INSERT INTO events (id, name, payload, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, name, string(payload), time.Now().Unix()); err != nil {
		return fmt.Errorf("workflow: insert event: %w", err)
	}
	return nil
}

// insertRun creates a run in the Running state.
func (s *Store) insertRun(ctx context.Context, runID, eventID, function string) error {
	const q = `
INSERT INTO runs (id, event_id, function, status, attempt, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, ?, ?)`
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, q, runID, eventID, function, string(StatusRunning), now, now); err != nil {
		return fmt.Errorf("workflow: insert run: %w", err)
	}
	return nil
}

// completeRun marks the run Completed and records its JSON output.
func (s *Store) completeRun(ctx context.Context, runID string, output []byte, attempt int) error {
	const q = `UPDATE runs SET status = ?, output = ?, error = NULL, attempt = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(StatusCompleted), string(output), attempt, time.Now().Unix(), runID); err != nil {
		return fmt.Errorf("workflow: complete run: %w", err)
	}
	return nil
}

// failRun marks the run Failed and records the error text.
func (s *Store) failRun(ctx context.Context, runID, errMsg string, attempt int) error {
	const q = `UPDATE runs SET status = ?, error = ?, attempt = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(StatusFailed), errMsg, attempt, time.Now().Unix(), runID); err != nil {
		return fmt.Errorf("workflow: fail run: %w", err)
	}
	return nil
}

// runsForEvent returns the runs spawned by the event, oldest first.
func (s *Store) runsForEvent(ctx context.Context, eventID string) ([]RunStatus, error) {
	const q = `
SELECT id, function, status, output, error, attempt, created_at, updated_at
FROM   runs
WHERE  event_id = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("workflow: runs for event: %w", err)
	}
	defer rows.Close()

	var runs []RunStatus
	for rows.Next() {
		var (
			r              RunStatus
			status         string
			output, errMsg sql.NullString
			created, upd   int64
		)
		if err := rows.Scan(&r.RunID, &r.Function, &status, &output, &errMsg, &r.Attempt, &created, &upd); err != nil {
			return nil, fmt.Errorf("workflow: runs for event scan: %w", err)
		}
		r.Status = Status(status)
		if output.Valid {
			r.Output = json.RawMessage(output.String)
		}
		r.Error = errMsg.String
		r.CreatedAt = time.Unix(created, 0)
		r.UpdatedAt = time.Unix(upd, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: runs for event rows: %w", err)
	}
	return runs, nil
}

// pendingRuns returns runs left in the Running state, joined with the name
// and payload of their triggering event, oldest first. Used on startup to
// resume work interrupted by a previous process.
func (s *Store) pendingRuns(ctx context.Context) ([]queuedRun, error) {
	const q = `
SELECT r.id, r.event_id, e.name, e.payload
FROM   runs r
JOIN   events e ON e.id = r.event_id
WHERE  r.status = ?
ORDER  BY r.created_at ASC, r.id ASC`

	rows, err := s.db.QueryContext(ctx, q, string(StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("workflow: pending runs: %w", err)
	}
	defer rows.Close()

	var pending []queuedRun
	for rows.Next() {
		var (
			qr      queuedRun
			payload string
		)
		if err := rows.Scan(&qr.runID, &qr.eventID, &qr.event, &payload); err != nil {
			return nil, fmt.Errorf("workflow: pending runs scan: %w", err)
		}
		qr.payload = json.RawMessage(payload)
		pending = append(pending, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: pending runs rows: %w", err)
	}
	return pending, nil
}

// stepOutput returns the stored output for (runID, name) if the step already
// executed.
func (s *Store) stepOutput(ctx context.Context, runID, name string) ([]byte, bool, error) {
	const q = `SELECT output FROM steps WHERE run_id = ? AND name = ?`
	var output string
	err := s.db.QueryRowContext(ctx, q, runID, name).Scan(&output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("workflow: step output: %w", err)
	}
	return []byte(output), true, nil
}

// saveStepOutput records the output of a completed step. A replayed run
// overwrites with the fresh output.
func (s *Store) saveStepOutput(ctx context.Context, runID, name string, output []byte) error {
	const q = `INSERT OR REPLACE INTO steps (run_id, name, output, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, runID, name, string(output), time.Now().Unix()); err != nil {
		return fmt.Errorf("workflow: save step output: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
