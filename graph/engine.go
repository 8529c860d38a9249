package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/convograph/graph/emit"
	"github.com/dshills/convograph/graph/store"
	"github.com/dshills/convograph/graph/wire"
)

// Engine drives a workflow graph to completion or suspension on behalf of
// long-lived conversation threads.
//
// One invocation is a loop: execute the current step, merge its delta via
// the reducer, record the committed step, route to the next step. The loop
// ends when the root graph terminates or a step suspends; either way the
// engine persists a snapshot and hands back an Envelope. A suspended thread
// is purely a durable marker; nothing is blocked, and the thread can be
// resumed from another process days later.
//
// Subgraphs registered via Graph.AddSubgraph are expanded in place: their
// steps run in the same loop with the same per-step commit granularity as
// native steps, and a suspension inside a nested graph records the frame
// path so Resume re-enters the exact inner step.
//
// Invocations are serialized per thread id by the engine; distinct threads
// run fully in parallel with no shared mutable state.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	graph   *Graph[S]
	reducer Reducer[S]
	store   store.Store[S]
	emitter emit.Emitter
	opts    Options

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// Options configures engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps bounds the number of steps one invocation may execute,
	// guarding against routing cycles. 0 means no limit.
	MaxSteps int

	// Metrics, when set, receives Prometheus observations for every step,
	// suspension and resume.
	Metrics *Metrics
}

// Envelope is the result of one invocation: the thread state after the last
// committed step, and the pending suspension if the run stopped at one.
// Messages appended by steps that committed before the suspension are in
// State's message log; a suspension never hides earlier output.
type Envelope[S any] struct {
	State     S
	Interrupt *wire.Suspension
	Terminal  bool
}

// New creates an engine for the given root graph.
//
// Parameters:
//   - g: root workflow graph (required)
//   - reducer: merges step deltas into state (required)
//   - st: checkpoint store (required)
//   - emitter: observability event receiver (optional, may be nil)
//   - opts: execution configuration
//
// Validation happens on the first Invoke/Resume, not here, so construction
// order stays flexible.
func New[S any](g *Graph[S], reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts Options) *Engine[S] {
	return &Engine[S]{
		graph:   g,
		reducer: reducer,
		store:   st,
		emitter: emitter,
		opts:    opts,
		threads: make(map[string]*sync.Mutex),
	}
}

// Invoke runs a new turn for a thread.
//
// If the thread has no snapshot, execution starts at the root entry step
// with input merged into zero state. If a snapshot exists, input is merged
// into the restored state and execution starts from the top; a pending
// suspension, if any, is abandoned; the caller chose to say something new
// instead of answering. Use Resume to answer a suspension.
func (e *Engine[S]) Invoke(ctx context.Context, threadID string, input S) (Envelope[S], error) {
	var zero Envelope[S]
	if err := e.validate(); err != nil {
		return zero, err
	}

	unlock := e.lockThread(threadID)
	defer unlock()

	snap, err := e.store.LoadSnapshot(ctx, threadID)
	var state S
	baseStep := 0
	switch {
	case errors.Is(err, store.ErrNotFound):
		var fresh S
		state = e.reducer(fresh, input)
	case err != nil:
		return zero, &EngineError{Message: "load snapshot: " + err.Error(), Code: "STORE_ERROR"}
	default:
		state = e.reducer(snap.State, input)
		baseStep = snap.Step
	}

	return e.run(ctx, threadID, state, nil, nil, baseStep)
}

// Resume answers the pending suspension of a thread and continues execution
// from the exact step that suspended. The step re-runs from its top with
// value available through ResumeValue; it must not assume any in-step work
// from before the suspension happened.
//
// Returns ErrUnknownThread when the thread has no snapshot and
// ErrNoPendingSuspension when there is nothing to resume. Neither mutates
// stored state.
func (e *Engine[S]) Resume(ctx context.Context, threadID string, value string) (Envelope[S], error) {
	var zero Envelope[S]
	if err := e.validate(); err != nil {
		return zero, err
	}

	unlock := e.lockThread(threadID)
	defer unlock()

	snap, err := e.store.LoadSnapshot(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return zero, ErrUnknownThread
	}
	if err != nil {
		return zero, &EngineError{Message: "load snapshot: " + err.Error(), Code: "STORE_ERROR"}
	}
	if !snap.Suspended() {
		return zero, ErrNoPendingSuspension
	}

	if m := e.opts.Metrics; m != nil {
		m.ResumeStarted()
	}
	return e.run(ctx, threadID, snap.State, snap.Path, &value, snap.Step)
}

// Reset deletes a thread's snapshot and history, for an explicit "new
// conversation". Resetting an unknown thread is a no-op.
func (e *Engine[S]) Reset(ctx context.Context, threadID string) error {
	unlock := e.lockThread(threadID)
	defer unlock()

	if err := e.store.DeleteSnapshot(ctx, threadID); err != nil {
		return &EngineError{Message: "delete snapshot: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}

func (e *Engine[S]) validate() error {
	if e.graph == nil {
		return &EngineError{Message: "graph is required", Code: "NO_ENTRY_STEP"}
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if e.graph.entry == "" {
		return &EngineError{Message: "entry step not set (call StartAt)", Code: "NO_ENTRY_STEP"}
	}
	return nil
}

// lockThread serializes invocations per thread id. The returned func
// releases the lock.
func (e *Engine[S]) lockThread(threadID string) func() {
	e.mu.Lock()
	lock, ok := e.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threads[threadID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// level is one entry of the subgraph frame stack: the graph executing at
// this depth and, for nested levels, the id of the subgraph step in the
// parent graph that opened it.
type level[S any] struct {
	g     *Graph[S]
	subID string
}

// run executes the step loop. path is non-empty only on resume, and names
// the suspended step via its subgraph frames; resume is the caller's answer,
// consumed by the first executed step.
func (e *Engine[S]) run(ctx context.Context, threadID string, state S, path []string, resume *string, baseStep int) (Envelope[S], error) {
	var zero Envelope[S]

	levels := []level[S]{{g: e.graph}}
	var current string
	if len(path) == 0 {
		current = e.graph.entry
	} else {
		// Descend the persisted frame path without re-running outer steps.
		g := e.graph
		for _, id := range path[:len(path)-1] {
			impl, ok := g.step(id)
			if !ok {
				return zero, &EngineError{Message: "snapshot path names unknown step: " + id, Code: "FRAME_MISMATCH"}
			}
			sg, ok := impl.(*subgraphStep[S])
			if !ok {
				return zero, &EngineError{Message: "snapshot path step is not a subgraph: " + id, Code: "FRAME_MISMATCH"}
			}
			levels = append(levels, level[S]{g: sg.graph, subID: id})
			g = sg.graph
		}
		current = path[len(path)-1]
	}

	step := baseStep
	for {
		step++
		if e.opts.MaxSteps > 0 && step-baseStep > e.opts.MaxSteps {
			return zero, &EngineError{Message: "invocation exceeded MaxSteps limit", Code: "MAX_STEPS_EXCEEDED"}
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		cur := levels[len(levels)-1]
		impl, ok := cur.g.step(current)
		if !ok {
			// Fatal: abort without touching the stored snapshot.
			return zero, &EngineError{Message: "unknown step: " + current, Code: "STEP_NOT_FOUND"}
		}

		// Entering a subgraph pushes a frame; the inner steps share this
		// loop's state, commit and suspension mechanics.
		if sg, ok := impl.(*subgraphStep[S]); ok {
			if sg.graph.entry == "" {
				return zero, &EngineError{Message: "subgraph has no entry step: " + current, Code: "NO_ENTRY_STEP"}
			}
			levels = append(levels, level[S]{g: sg.graph, subID: current})
			current = sg.graph.entry
			continue
		}

		runCtx := ctx
		if resume != nil {
			runCtx = withResume(ctx, *resume)
			resume = nil
		}

		started := time.Now()
		result := impl.Run(runCtx, state)
		if result.Err != nil {
			e.emit(threadID, step, current, "step failed", map[string]interface{}{"error": result.Err.Error()})
			if m := e.opts.Metrics; m != nil {
				m.ObserveStep(current, time.Since(started), false)
			}
			if _, ok := IsEngineError(result.Err); ok {
				return zero, result.Err
			}
			return zero, &StepError{StepID: current, Message: result.Err.Error(), Cause: result.Err}
		}

		state = e.reducer(state, result.Delta)

		if err := e.store.SaveStep(ctx, threadID, step, current, state); err != nil {
			return zero, &EngineError{Message: "save step: " + err.Error(), Code: "STORE_ERROR"}
		}
		e.emit(threadID, step, current, "step completed", nil)
		if m := e.opts.Metrics; m != nil {
			m.ObserveStep(current, time.Since(started), true)
		}

		if result.Route.Suspend != nil {
			snap := store.Snapshot[S]{
				State:     state,
				Path:      framePath(levels, current),
				Interrupt: result.Route.Suspend,
				Step:      step,
			}
			if err := e.store.SaveSnapshot(ctx, threadID, snap); err != nil {
				return zero, &EngineError{Message: "save snapshot: " + err.Error(), Code: "STORE_ERROR"}
			}
			e.emit(threadID, step, current, "suspended", map[string]interface{}{
				"suspension_type": result.Route.Suspend.Type,
			})
			if m := e.opts.Metrics; m != nil {
				m.SuspensionRaised(result.Route.Suspend.Type)
			}
			return Envelope[S]{State: state, Interrupt: result.Route.Suspend}, nil
		}

		next, terminal := "", false
		switch {
		case result.Route.Terminal:
			terminal = true
		case result.Route.To == End:
			terminal = true
		case result.Route.To != "":
			next = result.Route.To
		default:
			next = cur.g.nextEdge(current, state)
			if next == End {
				terminal = true
			} else if next == "" {
				return zero, &EngineError{Message: "no route from step: " + current, Code: "NO_ROUTE"}
			}
		}

		// A terminal inner graph pops back to its parent; termination may
		// cascade when the subgraph step itself ends the parent graph.
		for terminal {
			if len(levels) == 1 {
				snap := store.Snapshot[S]{State: state, Step: step}
				if err := e.store.SaveSnapshot(ctx, threadID, snap); err != nil {
					return zero, &EngineError{Message: "save snapshot: " + err.Error(), Code: "STORE_ERROR"}
				}
				e.emit(threadID, step, current, "invocation completed", nil)
				return Envelope[S]{State: state, Terminal: true}, nil
			}
			subID := levels[len(levels)-1].subID
			levels = levels[:len(levels)-1]
			parent := levels[len(levels)-1].g
			next = parent.nextEdge(subID, state)
			switch {
			case next == End:
				// parent also done; keep popping
			case next == "":
				return zero, &EngineError{Message: "no route from subgraph step: " + subID, Code: "NO_ROUTE"}
			default:
				terminal = false
			}
		}

		current = next
	}
}

// framePath serializes the frame stack plus the current step into the path
// persisted in a snapshot.
func framePath[S any](levels []level[S], current string) []string {
	path := make([]string, 0, len(levels))
	for _, l := range levels[1:] {
		path = append(path, l.subID)
	}
	return append(path, current)
}

func (e *Engine[S]) emit(threadID string, step int, stepID, msg string, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		ThreadID: threadID,
		Step:     step,
		StepID:   stepID,
		Msg:      msg,
		Meta:     meta,
	})
}
