package graph

import "context"

// subgraphStep marks a step as an embedded graph. The engine recognizes the
// type and expands it in place rather than calling Run; this is what keeps
// inner steps committing one at a time instead of collapsing the whole
// subgraph into a single opaque call.
type subgraphStep[S any] struct {
	graph *Graph[S]
}

// Run exists to satisfy the Step interface. The engine never invokes it;
// reaching it means a subgraph step escaped the engine's expansion.
func (s *subgraphStep[S]) Run(_ context.Context, _ S) StepResult[S] {
	return StepResult[S]{Err: &EngineError{
		Message: "subgraph step executed outside the engine",
		Code:    "FRAME_MISMATCH",
	}}
}
