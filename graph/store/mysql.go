package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store implementation for multi-host
// deployments where several processes share one checkpoint database.
//
// Per-key atomicity comes from upserting the single snapshot row per
// thread; the engine's per-thread invocation serialization supplies the
// rest of the required ordering.
//
// Type parameter S is the state type to persist (JSON-serializable).
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore connects with the given DSN (for example
// "user:pass@tcp(localhost:3306)/convograph?parseTime=true") and prepares
// the schema.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore[S]) createTables(ctx context.Context) error {
	const snapshots = `
		CREATE TABLE IF NOT EXISTS thread_snapshots (
			thread_id VARCHAR(255) PRIMARY KEY,
			snapshot JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, snapshots); err != nil {
		return fmt.Errorf("thread_snapshots: %w", err)
	}

	const steps = `
		CREATE TABLE IF NOT EXISTS thread_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			step_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_thread_step (thread_id, step),
			KEY idx_thread (thread_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, steps); err != nil {
		return fmt.Errorf("thread_steps: %w", err)
	}
	return nil
}

// SaveSnapshot overwrites the snapshot for a thread.
func (s *MySQLStore[S]) SaveSnapshot(ctx context.Context, threadID string, snap Snapshot[S]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_snapshots (thread_id, snapshot)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE snapshot = VALUES(snapshot)
	`, threadID, string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a thread.
func (s *MySQLStore[S]) LoadSnapshot(ctx context.Context, threadID string) (Snapshot[S], error) {
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
func (s *MySQLStore[S]) DeleteSnapshot(ctx context.Context, threadID string) error {
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

// SaveStep appends one committed step to the thread's history.
func (s *MySQLStore[S]) SaveStep(ctx context.Context, threadID string, step int, stepID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_steps (thread_id, step, step_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE step_id = VALUES(step_id), state = VALUES(state)
	`, threadID, step, stepID, string(data))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest returns the state and step number of the most recent history
// entry for a thread.
func (s *MySQLStore[S]) LoadLatest(ctx context.Context, threadID string) (S, int, error) {
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
func (s *MySQLStore[S]) Close() error {
	return s.db.Close()
}
