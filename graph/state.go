package graph

// Reducer merges a partial state update into the accumulated state.
//
// The engine calls the reducer once per executed step, with the state as it
// stood before the step and the Delta the step returned. Reducers must be
// deterministic and must treat both arguments as values: mutate and return
// prev, never retain delta.
//
// A typical reducer overwrites scalar fields only when the delta sets them
// and appends list fields (conversation history, assistant messages), which
// gives steps "return only what changed" semantics.
type Reducer[S any] func(prev, delta S) S
