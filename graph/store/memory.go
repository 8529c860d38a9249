package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store implementation for tests, development and
// single-process deployments where durability across restarts is not
// required.
//
// Snapshots are kept JSON-serialized. The round trip buys two things: every
// load returns an isolated copy (no aliasing between the engine's working
// state and the stored snapshot), and a state type that cannot survive
// MemStore will not survive any durable store either, so serialization bugs
// surface in tests.
//
// MemStore is safe for concurrent use.
type MemStore[S any] struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	steps     map[string][]StepRecord[S]
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		snapshots: make(map[string][]byte),
		steps:     make(map[string][]StepRecord[S]),
	}
}

// SaveSnapshot overwrites the snapshot for a thread.
func (m *MemStore[S]) SaveSnapshot(_ context.Context, threadID string, snap Snapshot[S]) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[threadID] = data
	return nil
}

// LoadSnapshot returns an isolated copy of the stored snapshot.
func (m *MemStore[S]) LoadSnapshot(_ context.Context, threadID string) (Snapshot[S], error) {
	m.mu.RLock()
	data, ok := m.snapshots[threadID]
	m.mu.RUnlock()

	var snap Snapshot[S]
	if !ok {
		return snap, ErrNotFound
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot removes a thread's snapshot and step history.
func (m *MemStore[S]) DeleteSnapshot(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, threadID)
	delete(m.steps, threadID)
	return nil
}

// SaveStep appends one committed step to the thread's history.
func (m *MemStore[S]) SaveStep(_ context.Context, threadID string, step int, stepID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[threadID] = append(m.steps[threadID], StepRecord[S]{
		Step:   step,
		StepID: stepID,
		State:  state,
	})
	return nil
}

// LoadLatest returns the most recent history entry for a thread.
func (m *MemStore[S]) LoadLatest(_ context.Context, threadID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[threadID]
	if len(records) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Step > latest.Step {
			latest = r
		}
	}
	return latest.State, latest.Step, nil
}
