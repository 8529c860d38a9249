package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/convograph/graph/wire"
)

// chatState is the state type used across store backend tests.
type chatState struct {
	Messages []string `json:"messages"`
	UserID   int      `json:"user_id"`
}

// testStoreContract runs the behavioral contract every Store implementation
// must satisfy. Backend test files call it with their own store.
func testStoreContract(t *testing.T, st Store[chatState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing returns ErrNotFound", func(t *testing.T) {
		if _, err := st.LoadSnapshot(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadSnapshot(missing) error = %v, want ErrNotFound", err)
		}
		if _, _, err := st.LoadLatest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadLatest(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("snapshot round trip", func(t *testing.T) {
		snap := Snapshot[chatState]{
			State:     chatState{Messages: []string{"hi"}, UserID: 7},
			Path:      []string{"email_flow", "enter_code"},
			Interrupt: wire.Input("Verification", "Enter the code", "6-digit code"),
			Step:      4,
		}
		if err := st.SaveSnapshot(ctx, "t1", snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		got, err := st.LoadSnapshot(ctx, "t1")
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if !reflect.DeepEqual(got, snap) {
			t.Errorf("loaded snapshot = %+v, want %+v", got, snap)
		}
		if !got.Suspended() {
			t.Error("loaded snapshot should report suspended")
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		second := Snapshot[chatState]{State: chatState{UserID: 7}, Step: 9}
		if err := st.SaveSnapshot(ctx, "t1", second); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		got, err := st.LoadSnapshot(ctx, "t1")
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if got.Suspended() || got.Step != 9 {
			t.Errorf("overwrite not applied: %+v", got)
		}
		if len(got.Path) != 0 {
			t.Errorf("stale path survived overwrite: %v", got.Path)
		}
	})

	t.Run("step history", func(t *testing.T) {
		for i, stepID := range []string{"ingest", "route", "respond"} {
			state := chatState{Messages: []string{stepID}}
			if err := st.SaveStep(ctx, "t2", i+1, stepID, state); err != nil {
				t.Fatalf("SaveStep(%d) failed: %v", i+1, err)
			}
		}
		state, step, err := st.LoadLatest(ctx, "t2")
		if err != nil {
			t.Fatalf("LoadLatest failed: %v", err)
		}
		if step != 3 {
			t.Errorf("latest step = %d, want 3", step)
		}
		if !reflect.DeepEqual(state.Messages, []string{"respond"}) {
			t.Errorf("latest state = %+v, want respond", state)
		}
	})

	t.Run("delete removes snapshot and history", func(t *testing.T) {
		snap := Snapshot[chatState]{State: chatState{UserID: 1}, Step: 1}
		if err := st.SaveSnapshot(ctx, "t3", snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		if err := st.SaveStep(ctx, "t3", 1, "ingest", snap.State); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		if err := st.DeleteSnapshot(ctx, "t3"); err != nil {
			t.Fatalf("DeleteSnapshot failed: %v", err)
		}
		if _, err := st.LoadSnapshot(ctx, "t3"); !errors.Is(err, ErrNotFound) {
			t.Errorf("snapshot survived delete: %v", err)
		}
		if _, _, err := st.LoadLatest(ctx, "t3"); !errors.Is(err, ErrNotFound) {
			t.Errorf("history survived delete: %v", err)
		}
		// Deleting again is a no-op.
		if err := st.DeleteSnapshot(ctx, "t3"); err != nil {
			t.Errorf("DeleteSnapshot on missing thread failed: %v", err)
		}
	})
}
