// Package emit provides pluggable observability for workflow execution.
package emit

// Event represents an observability event emitted during workflow execution.
//
// Events cover step commits, suspensions, resumes, errors and invocation
// completion. They are delivered to an Emitter, which may log them, export
// them as traces, or buffer them for inspection.
type Event struct {
	// ThreadID identifies the conversation thread that emitted this event.
	ThreadID string

	// Step is the thread-scoped step counter at the time of the event
	// (1-indexed, monotonic across invocations of the same thread).
	// Zero for thread-level events.
	Step int

	// StepID identifies the graph step involved. Empty for thread-level
	// events.
	StepID string

	// Msg is a short human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "error": error details for failed steps
	//   - "suspension_type": type of a raised suspension
	Meta map[string]interface{}
}
