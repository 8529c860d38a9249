package emit

// Emitter receives and processes observability events from workflow
// execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down workflow execution
//   - Thread-safe: may be called concurrently from multiple threads
//   - Resilient: handle backend failures without crashing the workflow
//
// Emit must not panic; errors should be handled internally.
type Emitter interface {
	Emit(event Event)
}
