// Package graph provides the suspend/resume workflow execution engine.
package graph

// Edge is a static transition between two steps of a graph.
//
// Edges define the default control flow evaluated when a step returns a
// zero-value Next. A step's explicit Goto always overrides edge routing.
// Edges may be unconditional (When nil) or guarded by a predicate; the
// first matching edge in declaration order wins.
//
// Type parameter S is the state type used for predicate evaluation.
type Edge[S any] struct {
	// From is the source step ID.
	From string

	// To is the destination step ID, or End to terminate the graph.
	To string

	// When guards the edge. Nil means unconditional.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge should be traversed.
// Predicates should be pure: deterministic and free of side effects.
//
// Type parameter S is the state type to evaluate.
type Predicate[S any] func(state S) bool
