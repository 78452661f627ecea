// Package store persists runs, their traces, and their event streams in
// SQLite so finished runs can be re-fetched after the live stream ends.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is a persisted run record.
type Run struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	URL       string     `json:"url"`
	Language  string     `json:"language"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Code      string     `json:"code,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SQLiteStore implements run persistence on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and migrates it.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			url TEXT NOT NULL,
			language TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			code TEXT,
			filename TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			step_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			call TEXT NOT NULL,
			result TEXT NOT NULL,
			at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, idx)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new running run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, task, url, language, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.URL, run.Language, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status, optional error, and generated code.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status, errMsg, code, filename string) error {
	ended := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, code = ?, filename = ?, ended_at = ? WHERE run_id = ?`,
		status, errMsg, code, filename, ended, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun fetches one run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run     Run
		errMsg  sql.NullString
		code    sql.NullString
		name    sql.NullString
		endedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, task, url, language, status, error, code, filename, started_at, ended_at
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&run.ID, &run.Task, &run.URL, &run.Language, &run.Status, &errMsg, &code, &name, &run.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Error = errMsg.String
	run.Code = code.String
	run.Filename = name.String
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// SaveTrace persists the frozen trace's steps for a run.
func (s *SQLiteStore) SaveTrace(ctx context.Context, runID string, frozen *trace.ExecutionTrace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, step := range frozen.Steps {
		call, err := json.Marshal(step.Call)
		if err != nil {
			return fmt.Errorf("failed to marshal call: %w", err)
		}
		result, err := json.Marshal(step.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO steps (step_id, run_id, idx, call, result, at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, step.Index, string(call), string(result), step.At); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step.Index, err)
		}
	}
	return tx.Commit()
}

// GetTrace reconstructs a run's steps in index order.
func (s *SQLiteStore) GetTrace(ctx context.Context, runID string) ([]trace.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, call, result, at FROM steps WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		var (
			step         trace.Step
			call, result string
		)
		if err := rows.Scan(&step.Index, &call, &result, &step.At); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(call), &step.Call); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call: %w", err)
		}
		if err := json.Unmarshal([]byte(result), &step.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// SaveEvent appends one event to a run's persisted stream. seq preserves
// emission order.
func (s *SQLiteStore) SaveEvent(ctx context.Context, runID string, seq int, event *types.AgentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, seq, type, payload, at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, seq, string(event.Type), string(payload), event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvents returns a run's events in emission order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string) ([]*types.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*types.AgentEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var event types.AgentEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
