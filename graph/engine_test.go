package graph

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dshills/convograph/graph/store"
	"github.com/dshills/convograph/graph/wire"
)

// testState is the shared state type for engine tests: an append-only
// execution log plus a counter.
type testState struct {
	Log   []string `json:"log"`
	Count int      `json:"count"`
}

func testReducer(prev, delta testState) testState {
	prev.Log = append(prev.Log, delta.Log...)
	prev.Count += delta.Count
	return prev
}

// logStep appends its id to the state log and follows the default edge.
func logStep(id string) StepFunc[testState] {
	return func(ctx context.Context, state testState) StepResult[testState] {
		return StepResult[testState]{Delta: testState{Log: []string{id}}}
	}
}

// recordingStore wraps a MemStore and records every committed step id, for
// asserting commit granularity.
type recordingStore struct {
	*store.MemStore[testState]
	mu        sync.Mutex
	committed []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemStore: store.NewMemStore[testState]()}
}

func (r *recordingStore) SaveStep(ctx context.Context, threadID string, step int, stepID string, state testState) error {
	r.mu.Lock()
	r.committed = append(r.committed, stepID)
	r.mu.Unlock()
	return r.MemStore.SaveStep(ctx, threadID, step, stepID, state)
}

// linearGraph builds a → b → c → End.
func linearGraph(t *testing.T) *Graph[testState] {
	t.Helper()
	g := NewGraph[testState]()
	for _, id := range []string{"a", "b", "c"} {
		if err := g.Add(id, logStep(id)); err != nil {
			t.Fatalf("Add(%q) failed: %v", id, err)
		}
	}
	_ = g.Connect("a", "b", nil)
	_ = g.Connect("b", "c", nil)
	_ = g.Connect("c", End, nil)
	if err := g.StartAt("a"); err != nil {
		t.Fatalf("StartAt failed: %v", err)
	}
	return g
}

func TestEngine_InvokeRunsToCompletion(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(linearGraph(t), testReducer, st, nil, Options{})

	env, err := engine.Invoke(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope")
	}
	if env.Interrupt != nil {
		t.Errorf("expected no interrupt, got %+v", env.Interrupt)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("execution order = %v, want %v", env.State.Log, want)
	}

	// Terminal snapshot persisted, runnable from the top.
	snap, err := st.LoadSnapshot(context.Background(), "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Suspended() {
		t.Error("terminal snapshot should not be suspended")
	}
	if len(snap.Path) != 0 {
		t.Errorf("terminal snapshot path = %v, want empty", snap.Path)
	}
	if snap.Step != 3 {
		t.Errorf("snapshot step = %d, want 3", snap.Step)
	}
}

func TestEngine_StatePersistsAcrossTurns(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(linearGraph(t), testReducer, st, nil, Options{})
	ctx := context.Background()

	if _, err := engine.Invoke(ctx, "t1", testState{Count: 1}); err != nil {
		t.Fatalf("first Invoke failed: %v", err)
	}
	env, err := engine.Invoke(ctx, "t1", testState{Count: 1})
	if err != nil {
		t.Fatalf("second Invoke failed: %v", err)
	}

	if env.State.Count != 2 {
		t.Errorf("count after two turns = %d, want 2", env.State.Count)
	}
	if len(env.State.Log) != 6 {
		t.Errorf("log length after two turns = %d, want 6", len(env.State.Log))
	}

	// The step counter continues across turns so history rows stay unique.
	_, step, err := st.LoadLatest(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if step != 6 {
		t.Errorf("latest history step = %d, want 6", step)
	}
}

func TestEngine_ThreadsAreIsolated(t *testing.T) {
	engine := New(linearGraph(t), testReducer, store.NewMemStore[testState](), nil, Options{})
	ctx := context.Background()

	envA, err := engine.Invoke(ctx, "alpha", testState{Count: 5})
	if err != nil {
		t.Fatalf("Invoke alpha failed: %v", err)
	}
	envB, err := engine.Invoke(ctx, "beta", testState{Count: 7})
	if err != nil {
		t.Fatalf("Invoke beta failed: %v", err)
	}
	if envA.State.Count != 5 || envB.State.Count != 7 {
		t.Errorf("thread state leaked: alpha=%d beta=%d", envA.State.Count, envB.State.Count)
	}
}

// suspendGraph builds a → ask → c where ask suspends on first entry and
// routes onward once resumed.
func suspendGraph(t *testing.T) *Graph[testState] {
	t.Helper()
	g := NewGraph[testState]()
	_ = g.Add("a", logStep("a"))
	_ = g.Add("ask", StepFunc[testState](func(ctx context.Context, state testState) StepResult[testState] {
		answer, ok := ResumeValue(ctx)
		if !ok {
			return StepResult[testState]{
				Delta: testState{Log: []string{"ask"}},
				Route: Ask(wire.Confirm("Purchase", "Buy it?")),
			}
		}
		return StepResult[testState]{Delta: testState{Log: []string{"ask:" + answer}}}
	}))
	_ = g.Add("c", logStep("c"))
	_ = g.Connect("a", "ask", nil)
	_ = g.Connect("ask", "c", nil)
	_ = g.Connect("c", End, nil)
	if err := g.StartAt("a"); err != nil {
		t.Fatalf("StartAt failed: %v", err)
	}
	return g
}

func TestEngine_SuspendAndResume(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(suspendGraph(t), testReducer, st, nil, Options{})
	ctx := context.Background()

	env, err := engine.Invoke(ctx, "t1", testState{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if env.Terminal {
		t.Error("suspended envelope should not be terminal")
	}
	if env.Interrupt == nil {
		t.Fatal("expected interrupt in envelope")
	}
	if env.Interrupt.Type != wire.SuspendConfirm {
		t.Errorf("interrupt type = %q, want %q", env.Interrupt.Type, wire.SuspendConfirm)
	}
	// Deltas committed before and at the suspension are visible.
	if !reflect.DeepEqual(env.State.Log, []string{"a", "ask"}) {
		t.Errorf("suspended state log = %v, want [a ask]", env.State.Log)
	}

	snap, err := st.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !snap.Suspended() {
		t.Fatal("snapshot should be suspended")
	}
	if !reflect.DeepEqual(snap.Path, []string{"ask"}) {
		t.Errorf("snapshot path = %v, want [ask]", snap.Path)
	}

	env, err = engine.Resume(ctx, "t1", "Yes")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope after resume")
	}
	want := []string{"a", "ask", "ask:Yes", "c"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("log after resume = %v, want %v", env.State.Log, want)
	}
}

func TestEngine_ResumeProtocolErrors(t *testing.T) {
	engine := New(suspendGraph(t), testReducer, store.NewMemStore[testState](), nil, Options{})
	ctx := context.Background()

	if _, err := engine.Resume(ctx, "never-seen", "Yes"); !errors.Is(err, ErrUnknownThread) {
		t.Errorf("Resume on unknown thread: error = %v, want ErrUnknownThread", err)
	}

	if _, err := engine.Invoke(ctx, "t1", testState{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if _, err := engine.Resume(ctx, "t1", "Yes"); err != nil {
		t.Fatalf("first Resume failed: %v", err)
	}
	// The suspension is consumed; resuming again is a protocol error.
	if _, err := engine.Resume(ctx, "t1", "Yes"); !errors.Is(err, ErrNoPendingSuspension) {
		t.Errorf("second Resume: error = %v, want ErrNoPendingSuspension", err)
	}
}

func TestEngine_InvokeAbandonsPendingSuspension(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(suspendGraph(t), testReducer, st, nil, Options{})
	ctx := context.Background()

	if _, err := engine.Invoke(ctx, "t1", testState{}); err != nil {
		t.Fatalf("first Invoke failed: %v", err)
	}
	// A new message instead of an answer starts a fresh turn from the top.
	env, err := engine.Invoke(ctx, "t1", testState{})
	if err != nil {
		t.Fatalf("second Invoke failed: %v", err)
	}
	if env.Interrupt == nil {
		t.Fatal("expected the fresh turn to reach the suspension again")
	}
	want := []string{"a", "ask", "a", "ask"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("log = %v, want %v", env.State.Log, want)
	}
}

func TestEngine_UnknownStepAbortsWithoutPersisting(t *testing.T) {
	g := NewGraph[testState]()
	_ = g.Add("a", StepFunc[testState](func(ctx context.Context, state testState) StepResult[testState] {
		return StepResult[testState]{Route: Goto("missing")}
	}))
	_ = g.StartAt("a")

	st := store.NewMemStore[testState]()
	engine := New(g, testReducer, st, nil, Options{})

	_, err := engine.Invoke(context.Background(), "t1", testState{})
	ee, ok := IsEngineError(err)
	if !ok || ee.Code != "STEP_NOT_FOUND" {
		t.Fatalf("expected STEP_NOT_FOUND engine error, got %v", err)
	}
	if _, err := st.LoadSnapshot(context.Background(), "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("aborted invocation must not persist a snapshot")
	}
}

func TestEngine_NoRoute(t *testing.T) {
	g := NewGraph[testState]()
	_ = g.Add("a", logStep("a"))
	_ = g.StartAt("a")
	engine := New(g, testReducer, store.NewMemStore[testState](), nil, Options{})

	_, err := engine.Invoke(context.Background(), "t1", testState{})
	if ee, ok := IsEngineError(err); !ok || ee.Code != "NO_ROUTE" {
		t.Errorf("expected NO_ROUTE engine error, got %v", err)
	}
}

func TestEngine_MaxSteps(t *testing.T) {
	g := NewGraph[testState]()
	_ = g.Add("spin", StepFunc[testState](func(ctx context.Context, state testState) StepResult[testState] {
		return StepResult[testState]{Route: Goto("spin")}
	}))
	_ = g.StartAt("spin")
	engine := New(g, testReducer, store.NewMemStore[testState](), nil, Options{MaxSteps: 5})

	_, err := engine.Invoke(context.Background(), "t1", testState{})
	if ee, ok := IsEngineError(err); !ok || ee.Code != "MAX_STEPS_EXCEEDED" {
		t.Errorf("expected MAX_STEPS_EXCEEDED engine error, got %v", err)
	}
}

func TestEngine_StepErrorWrapsCause(t *testing.T) {
	cause := errors.New("downstream unavailable")
	g := NewGraph[testState]()
	_ = g.Add("a", StepFunc[testState](func(ctx context.Context, state testState) StepResult[testState] {
		return StepResult[testState]{Err: cause}
	}))
	_ = g.StartAt("a")
	engine := New(g, testReducer, store.NewMemStore[testState](), nil, Options{})

	_, err := engine.Invoke(context.Background(), "t1", testState{})
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %T: %v", err, err)
	}
	if se.StepID != "a" {
		t.Errorf("StepError.StepID = %q, want %q", se.StepID, "a")
	}
	if !errors.Is(err, cause) {
		t.Error("StepError should unwrap to the original cause")
	}
}

func TestEngine_PerStepCommit(t *testing.T) {
	rs := newRecordingStore()
	engine := New(linearGraph(t), testReducer, rs, nil, Options{})

	if _, err := engine.Invoke(context.Background(), "t1", testState{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(rs.committed, want) {
		t.Errorf("committed steps = %v, want %v", rs.committed, want)
	}
}

func TestEngine_ContextCancellation(t *testing.T) {
	engine := New(linearGraph(t), testReducer, store.NewMemStore[testState](), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Invoke(ctx, "t1", testState{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_Validation(t *testing.T) {
	g := linearGraph(t)
	st := store.NewMemStore[testState]()

	tests := []struct {
		name     string
		engine   *Engine[testState]
		wantCode string
	}{
		{"missing reducer", New(g, nil, st, nil, Options{}), "MISSING_REDUCER"},
		{"missing store", New[testState](g, testReducer, nil, nil, Options{}), "MISSING_STORE"},
		{"no entry step", New(NewGraph[testState](), testReducer, st, nil, Options{}), "NO_ENTRY_STEP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.Invoke(context.Background(), "t1", testState{})
			if ee, ok := IsEngineError(err); !ok || ee.Code != tt.wantCode {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestEngine_Reset(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(suspendGraph(t), testReducer, st, nil, Options{})
	ctx := context.Background()

	if _, err := engine.Invoke(ctx, "t1", testState{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if err := engine.Reset(ctx, "t1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := st.LoadSnapshot(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("Reset should delete the snapshot")
	}
	// Resetting again is a no-op.
	if err := engine.Reset(ctx, "t1"); err != nil {
		t.Errorf("Reset on unknown thread failed: %v", err)
	}
}

func TestEngine_ConcurrentInvocationsSerializePerThread(t *testing.T) {
	st := store.NewMemStore[testState]()
	engine := New(linearGraph(t), testReducer, st, nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Invoke(ctx, "shared", testState{Count: 1}); err != nil {
				t.Errorf("Invoke failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := st.LoadSnapshot(ctx, "shared")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	// All 8 turns applied, none lost to interleaving.
	if snap.State.Count != 8 {
		t.Errorf("count = %d, want 8", snap.State.Count)
	}
	if len(snap.State.Log) != 24 {
		t.Errorf("log length = %d, want 24", len(snap.State.Log))
	}
}
