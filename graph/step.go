package graph

import (
	"context"

	"github.com/dshills/convograph/graph/wire"
)

// Step is one unit of work in a workflow graph. It receives the current
// thread state, performs its computation, and returns a StepResult carrying
// a state delta and a routing decision.
//
// Steps must be written to be safely re-runnable from their top: when a step
// suspends and the thread is later resumed, the engine executes the step
// again from scratch with the resume value available via ResumeValue. Any
// side effect a step performs before it knows the resume value must be
// idempotent or deferred.
//
// Type parameter S is the state type shared across the workflow.
type Step[S any] interface {
	Run(ctx context.Context, state S) StepResult[S]
}

// StepResult is the outcome of a step execution.
type StepResult[S any] struct {
	// Delta is the partial state update produced by this step.
	// It is merged into the current state by the engine's reducer.
	Delta S

	// Route declares what happens next: follow the default edge (zero
	// value), go to an explicit step, stop, or suspend for human input.
	Route Next

	// Err aborts the invocation. Use it for engine-visible failures only;
	// expected domain failures should instead produce a message delta and a
	// route out of the flow.
	Err error
}

// Next is the closed routing decision a step may return.
//
// Exactly one of the following holds:
//   - zero value: follow the graph's default edge for this step
//   - To != "": go to the named step (overrides default edges)
//   - Terminal: the current graph is done
//   - Suspend != nil: pause the thread and ask the caller for input
type Next struct {
	To       string
	Terminal bool
	Suspend  *wire.Suspension
}

// Stop returns a Next that ends the current graph. Inside a subgraph this
// returns control to the parent; at the root it completes the invocation.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the named step, overriding any default
// edge declared for the current step.
func Goto(stepID string) Next {
	return Next{To: stepID}
}

// Ask returns a Next that suspends the thread with the given payload.
// The step's Delta is committed before the suspension is surfaced, so
// messages appended by the same result remain visible to the caller.
func Ask(s *wire.Suspension) Next {
	return Next{Suspend: s}
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc[S any] func(ctx context.Context, state S) StepResult[S]

// Run implements Step.
func (f StepFunc[S]) Run(ctx context.Context, state S) StepResult[S] {
	return f(ctx, state)
}

type resumeKey struct{}

// withResume makes a resume value visible to the step about to re-run.
func withResume(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, resumeKey{}, value)
}

// ResumeValue reports the caller-supplied answer to the suspension this step
// raised, if the step is being re-entered after a resume. A step that may
// suspend should branch on the second return: absent a resume value it asks,
// with one it interprets the answer.
//
//	decision, ok := graph.ResumeValue(ctx)
//	if !ok {
//	    return graph.StepResult[S]{Route: graph.Ask(wire.Confirm("Purchase", "Buy it?"))}
//	}
//	if decision == "Yes" { ... }
func ResumeValue(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(resumeKey{}).(string)
	return v, ok
}

// StepError is a structured error raised by or attributed to a single step.
type StepError struct {
	StepID  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error {
	return e.Cause
}
