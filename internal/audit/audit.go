// Package audit persists pipeline runs and their recorded skips and
// conflicts, so every dropped row stays accountable after the fact.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Event kinds.
const (
	KindSkip     = "skip"
	KindConflict = "conflict"
)

// Run is one invocation of a pipeline command.
type Run struct {
	ID         string
	Command    string
	Status     string
	Summary    string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// Event is one recorded skip or conflict within a run.
type Event struct {
	ID        string
	RunID     string
	Kind      string
	Source    string
	Detail    string
	CreatedAt time.Time
}

// Store records runs and events in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path and configures WAL
// mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "audit: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "audit: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	created_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	kind       TEXT NOT NULL,
	source     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);
`

// Migrate creates the schema if needed.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "audit: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a new running record for the given command.
func (s *Store) BeginRun(ctx context.Context, command string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Command:   command,
		Status:    "running",
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Command, run.Status, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "audit: insert run")
	}
	return run, nil
}

// FinishRun marks a run complete or failed with a short summary.
func (s *Store) FinishRun(ctx context.Context, runID, status, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, summary, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "audit: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "audit: rows affected")
	}
	if n == 0 {
		return eris.Errorf("audit: run %s not found", runID)
	}
	return nil
}

// RecordEvent stores one skip or conflict under a run.
func (s *Store) RecordEvent(ctx context.Context, runID, kind, source, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, run_id, kind, source, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, kind, source, detail, time.Now().UTC(),
	)
	return eris.Wrap(err, "audit: insert event")
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, status, COALESCE(summary, ''), created_at, finished_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Command, &r.Status, &r.Summary, &r.CreatedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "audit: scan run")
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "audit: iterate runs")
}

// ListEvents returns the recorded events of one run, oldest first.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, source, detail, created_at
		 FROM events WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &e.Source, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "audit: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "audit: iterate events")
}
