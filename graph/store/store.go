// Package store provides durable checkpoint storage for workflow threads.
package store

import (
	"context"
	"errors"

	"github.com/dshills/convograph/graph/wire"
)

// ErrNotFound is returned when a thread id has no stored snapshot or step
// history.
var ErrNotFound = errors.New("not found")

// Snapshot is the durable unit stored per thread: the full thread state
// plus the engine's position information.
//
// A snapshot is always in one of two shapes:
//   - runnable from the top: Interrupt nil and Path empty
//   - resumable at exactly one suspension site: Interrupt set and Path
//     naming the suspended step, prefixed by the subgraph step ids leading
//     to it from the root graph
//
// Type parameter S is the state type; it must be JSON-serializable.
type Snapshot[S any] struct {
	// State is the thread state as of the last committed step.
	State S `json:"state"`

	// Path locates the pending suspension. The last element is the
	// suspended step id; earlier elements are the subgraph step ids
	// descending from the root graph. Empty when not suspended.
	Path []string `json:"path,omitempty"`

	// Interrupt is the pending suspension payload, nil when the thread is
	// runnable from the top.
	Interrupt *wire.Suspension `json:"interrupt,omitempty"`

	// Step is the engine step counter at the time of the save.
	Step int `json:"step"`
}

// Suspended reports whether the snapshot is waiting on a resume.
func (s Snapshot[S]) Suspended() bool {
	return s.Interrupt != nil
}

// Store persists workflow thread snapshots and per-step history.
//
// The snapshot methods are the engine's checkpoint contract: one snapshot
// per thread id, overwritten on every suspension or completion, deleted on
// explicit "new conversation". The step methods record the state after each
// committed step for inspection and debugging; they are advisory history,
// not required for resumption.
//
// Implementations must provide linearizable read-then-write semantics per
// thread id. The engine serializes invocations per thread, so a store only
// needs per-key atomicity, not cross-key transactions.
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// SaveSnapshot overwrites the snapshot for a thread.
	SaveSnapshot(ctx context.Context, threadID string, snap Snapshot[S]) error

	// LoadSnapshot returns the stored snapshot for a thread, or ErrNotFound
	// for a thread that has never been saved (or was deleted).
	LoadSnapshot(ctx context.Context, threadID string) (Snapshot[S], error)

	// DeleteSnapshot removes a thread's snapshot and step history. Deleting
	// an unknown thread is a no-op.
	DeleteSnapshot(ctx context.Context, threadID string) error

	// SaveStep appends one committed step to the thread's history.
	SaveStep(ctx context.Context, threadID string, step int, stepID string, state S) error

	// LoadLatest returns the state and step number of the most recent
	// history entry, or ErrNotFound when the thread has no history.
	LoadLatest(ctx context.Context, threadID string) (S, int, error)
}

// StepRecord is one entry of a thread's step history.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	StepID string `json:"step_id"`
	State  S      `json:"state"`
}
