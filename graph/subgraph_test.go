package graph

import (
	"context"
	"reflect"
	"testing"

	"github.com/dshills/convograph/graph/store"
	"github.com/dshills/convograph/graph/wire"
)

// innerGraph builds x → y → End, with y optionally suspending on first
// entry.
func innerGraph(t *testing.T, suspendAtY bool) *Graph[testState] {
	t.Helper()
	g := NewGraph[testState]()
	_ = g.Add("x", logStep("x"))
	if suspendAtY {
		_ = g.Add("y", StepFunc[testState](func(ctx context.Context, state testState) StepResult[testState] {
			answer, ok := ResumeValue(ctx)
			if !ok {
				return StepResult[testState]{
					Delta: testState{Log: []string{"y"}},
					Route: Ask(wire.Input("Code", "Enter the code", "123456")),
				}
			}
			return StepResult[testState]{Delta: testState{Log: []string{"y:" + answer}}}
		}))
	} else {
		_ = g.Add("y", logStep("y"))
	}
	_ = g.Connect("x", "y", nil)
	_ = g.Connect("y", End, nil)
	if err := g.StartAt("x"); err != nil {
		t.Fatalf("StartAt failed: %v", err)
	}
	return g
}

func TestSubgraph_InlineExpansion(t *testing.T) {
	root := NewGraph[testState]()
	_ = root.Add("a", logStep("a"))
	if err := root.AddSubgraph("flow", innerGraph(t, false)); err != nil {
		t.Fatalf("AddSubgraph failed: %v", err)
	}
	_ = root.Add("c", logStep("c"))
	_ = root.Connect("a", "flow", nil)
	_ = root.Connect("flow", "c", nil)
	_ = root.Connect("c", End, nil)
	_ = root.StartAt("a")

	rs := newRecordingStore()
	engine := New(root, testReducer, rs, nil, Options{})

	env, err := engine.Invoke(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope")
	}
	want := []string{"a", "x", "y", "c"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("execution order = %v, want %v", env.State.Log, want)
	}
	// Inner steps commit individually, same granularity as root steps.
	if !reflect.DeepEqual(rs.committed, want) {
		t.Errorf("committed steps = %v, want %v", rs.committed, want)
	}
}

func TestSubgraph_SuspensionRecordsFramePath(t *testing.T) {
	root := NewGraph[testState]()
	_ = root.Add("a", logStep("a"))
	_ = root.AddSubgraph("flow", innerGraph(t, true))
	_ = root.Add("c", logStep("c"))
	_ = root.Connect("a", "flow", nil)
	_ = root.Connect("flow", "c", nil)
	_ = root.Connect("c", End, nil)
	_ = root.StartAt("a")

	st := store.NewMemStore[testState]()
	engine := New(root, testReducer, st, nil, Options{})
	ctx := context.Background()

	env, err := engine.Invoke(ctx, "t1", testState{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if env.Interrupt == nil {
		t.Fatal("expected suspension from inner step")
	}

	snap, err := st.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(snap.Path, []string{"flow", "y"}) {
		t.Errorf("snapshot path = %v, want [flow y]", snap.Path)
	}

	// Resume re-enters y inside the subgraph without re-running a or x,
	// then the terminal inner graph pops back to the parent's edge.
	env, err = engine.Resume(ctx, "t1", "4242")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope after resume")
	}
	want := []string{"a", "x", "y", "y:4242", "c"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("log after resume = %v, want %v", env.State.Log, want)
	}
}

func TestSubgraph_NestedTwoLevels(t *testing.T) {
	inner := innerGraph(t, true)

	mid := NewGraph[testState]()
	_ = mid.Add("m", logStep("m"))
	_ = mid.AddSubgraph("deep", inner)
	_ = mid.Connect("m", "deep", nil)
	_ = mid.Connect("deep", End, nil)
	_ = mid.StartAt("m")

	root := NewGraph[testState]()
	_ = root.AddSubgraph("outer", mid)
	_ = root.Add("done", logStep("done"))
	_ = root.Connect("outer", "done", nil)
	_ = root.Connect("done", End, nil)
	_ = root.StartAt("outer")

	st := store.NewMemStore[testState]()
	engine := New(root, testReducer, st, nil, Options{})
	ctx := context.Background()

	if _, err := engine.Invoke(ctx, "t1", testState{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	snap, err := st.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(snap.Path, []string{"outer", "deep", "y"}) {
		t.Errorf("snapshot path = %v, want [outer deep y]", snap.Path)
	}

	env, err := engine.Resume(ctx, "t1", "ok")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope after nested resume")
	}
	want := []string{"m", "x", "y", "y:ok", "done"}
	if !reflect.DeepEqual(env.State.Log, want) {
		t.Errorf("log = %v, want %v", env.State.Log, want)
	}
}

func TestSubgraph_TerminalCascade(t *testing.T) {
	// The subgraph step's edge leads straight to End, so the inner graph
	// finishing ends the root graph too.
	root := NewGraph[testState]()
	_ = root.AddSubgraph("flow", innerGraph(t, false))
	_ = root.Connect("flow", End, nil)
	_ = root.StartAt("flow")

	engine := New(root, testReducer, store.NewMemStore[testState](), nil, Options{})
	env, err := engine.Invoke(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !env.Terminal {
		t.Error("expected terminal envelope")
	}
	if !reflect.DeepEqual(env.State.Log, []string{"x", "y"}) {
		t.Errorf("log = %v, want [x y]", env.State.Log)
	}
}

func TestSubgraph_NoRouteFromSubgraphStep(t *testing.T) {
	root := NewGraph[testState]()
	_ = root.AddSubgraph("flow", innerGraph(t, false))
	_ = root.StartAt("flow")

	engine := New(root, testReducer, store.NewMemStore[testState](), nil, Options{})
	_, err := engine.Invoke(context.Background(), "t1", testState{})
	if ee, ok := IsEngineError(err); !ok || ee.Code != "NO_ROUTE" {
		t.Errorf("expected NO_ROUTE engine error, got %v", err)
	}
}

func TestSubgraph_CorruptPathFailsResume(t *testing.T) {
	root := NewGraph[testState]()
	_ = root.Add("a", logStep("a"))
	_ = root.Connect("a", End, nil)
	_ = root.StartAt("a")

	st := store.NewMemStore[testState]()
	engine := New(root, testReducer, st, nil, Options{})
	ctx := context.Background()

	// Fabricate a snapshot whose path descends through a non-subgraph step.
	snap := store.Snapshot[testState]{
		Path:      []string{"a", "ghost"},
		Interrupt: wire.Confirm("x", "y"),
		Step:      1,
	}
	if err := st.SaveSnapshot(ctx, "t1", snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	_, err := engine.Resume(ctx, "t1", "Yes")
	if ee, ok := IsEngineError(err); !ok || ee.Code != "FRAME_MISMATCH" {
		t.Errorf("expected FRAME_MISMATCH engine error, got %v", err)
	}
}
