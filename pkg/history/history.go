// Package history stores the outcome of every run in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    input       TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    total       INTEGER NOT NULL,
    failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
    run_id   TEXT NOT NULL REFERENCES runs(id),
    position INTEGER NOT NULL,
    url      TEXT NOT NULL,
    file     TEXT NOT NULL,
    landing  TEXT,
    error    TEXT,
    PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one batch execution.
type Run struct {
	ID         string
	Input      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Outcome is the stored result of one item. An empty Error means success.
// LandingURL is set when the capture ended up on a different URL.
type Outcome struct {
	URL        string
	File       string
	LandingURL string
	Error      string
}

// NewRun starts a Run with a fresh ID.
func NewRun(input string) Run {
	return Run{ID: uuid.NewString(), Input: input, StartedAt: time.Now()}
}

// Failed returns the number of failed outcomes.
func (r Run) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Error != "" {
			n++
		}
	}
	return n
}

// Store persists runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run and its outcomes in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, input, started_at, finished_at, total, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.StartedAt.UTC(), run.FinishedAt.UTC(), len(run.Outcomes), run.Failed(),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, url, file, landing, error) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range run.Outcomes {
		if _, err := stmt.ExecContext(ctx, run.ID, i, o.URL, o.File, nullString(o.LandingURL), nullString(o.Error)); err != nil {
			return fmt.Errorf("inserting outcome %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first, with their outcomes.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Input, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		runs[i].Outcomes, err = s.outcomes(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, file, landing, error FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var landing, errText sql.NullString
		if err := rows.Scan(&o.URL, &o.File, &landing, &errText); err != nil {
			return nil, err
		}
		o.LandingURL = landing.String
		o.Error = errText.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
