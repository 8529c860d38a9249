package emit

// NullEmitter implements Emitter by discarding all events.
//
// Use when event emission is unwanted without changing engine wiring.
// Safe for concurrent use, zero overhead.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
