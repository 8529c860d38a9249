package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file Store implementation.
//
// Designed for:
//   - Development and single-host deployments with zero setup
//   - Durable threads that must survive process restarts
//   - Prototyping before moving to MySQL or Redis
//
// The store auto-migrates its schema on first use and enables WAL mode so
// readers do not block the single writer.
//
// Schema:
//   - thread_snapshots: one row per thread, overwritten on every save
//   - thread_steps: append-only per-step history
//
// Type parameter S is the state type to persist (JSON-serializable).
type SQLiteStore[S any] struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const snapshots = `
		CREATE TABLE IF NOT EXISTS thread_snapshots (
			thread_id TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, snapshots); err != nil {
		return fmt.Errorf("thread_snapshots: %w", err)
	}

	const steps = `
		CREATE TABLE IF NOT EXISTS thread_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(thread_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, steps); err != nil {
		return fmt.Errorf("thread_steps: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_thread_steps_thread ON thread_steps(thread_id, step)"); err != nil {
		return fmt.Errorf("idx_thread_steps_thread: %w", err)
	}
	return nil
}

// SaveSnapshot overwrites the snapshot for a thread.
func (s *SQLiteStore[S]) SaveSnapshot(ctx context.Context, threadID string, snap Snapshot[S]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_snapshots (thread_id, snapshot, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(thread_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = CURRENT_TIMESTAMP
	`, threadID, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a thread.
func (s *SQLiteStore[S]) LoadSnapshot(ctx context.Context, threadID string) (Snapshot[S], error) {
	var snap Snapshot[S]
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM thread_snapshots WHERE thread_id = ?", threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot removes a thread's snapshot and step history.
func (s *SQLiteStore[S]) DeleteSnapshot(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM thread_snapshots WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM thread_steps WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	return nil
}

// SaveStep appends one committed step to the thread's history. Saving the
// same step number twice overwrites the earlier record, which makes crash
// retries of an invocation idempotent at the history level.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, threadID string, step int, stepID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_steps (thread_id, step, step_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id, step) DO UPDATE SET
			step_id = excluded.step_id,
			state = excluded.state
	`, threadID, step, stepID, string(data))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest returns the state and step number of the most recent history
// entry for a thread.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, threadID string) (S, int, error) {
	var zero S
	var data string
	var step int
	err := s.db.QueryRowContext(ctx, `
		SELECT state, step FROM thread_steps
		WHERE thread_id = ?
		ORDER BY step DESC LIMIT 1
	`, threadID).Scan(&data, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("load latest: %w", err)
	}
	var state S
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}
