package graph

import "errors"

// Protocol errors: caller misuse, surfaced immediately and never persisted.

// ErrUnknownThread is returned by Resume when the thread id has no stored
// snapshot. A resume must name the same thread the suspension was issued on.
var ErrUnknownThread = errors.New("unknown thread")

// ErrNoPendingSuspension is returned by Resume when the thread exists but is
// not suspended. At most one suspension is outstanding per thread; a retried
// resume after the first one completed lands here.
var ErrNoPendingSuspension = errors.New("no pending suspension")

// EngineError is an engine-internal failure: a broken graph, a corrupt
// snapshot, or a store fault. These abort the invocation without mutating
// the stored snapshot and are distinct from protocol errors.
//
// Codes: STEP_NOT_FOUND, NO_ROUTE, MAX_STEPS_EXCEEDED, MISSING_REDUCER,
// MISSING_STORE, NO_ENTRY_STEP, FRAME_MISMATCH, STORE_ERROR.
type EngineError struct {
	Message string
	Code    string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// IsEngineError reports whether err is an engine-internal failure and
// returns it typed if so.
func IsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
