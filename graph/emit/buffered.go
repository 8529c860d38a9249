package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, organized
// by thread id.
//
// Intended for development, testing and post-execution analysis. Events are
// kept until cleared, so long-lived high-volume deployments should prefer a
// persistent backend.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter specifies criteria for filtering thread history. All fields
// are optional; set fields combine with AND logic.
type HistoryFilter struct {
	StepID  string // filter by step id (empty = no filter)
	Msg     string // filter by message (empty = no filter)
	MinStep *int   // minimum step number (nil = no filter)
	MaxStep *int   // maximum step number (nil = no filter)
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to the thread's buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// GetHistory returns a copy of all events recorded for a thread, in
// emission order.
func (b *BufferedEmitter) GetHistory(threadID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// GetHistoryWithFilter returns the thread's events matching the filter, in
// emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[threadID] {
		if filter.StepID != "" && ev.StepID != filter.StepID {
			continue
		}
		if filter.Msg != "" && ev.Msg != filter.Msg {
			continue
		}
		if filter.MinStep != nil && ev.Step < *filter.MinStep {
			continue
		}
		if filter.MaxStep != nil && ev.Step > *filter.MaxStep {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear removes all events recorded for a thread.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, threadID)
}

// ClearAll removes all recorded events.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
