package store

import (
	"context"
	"testing"
)

func TestMemStore_Contract(t *testing.T) {
	testStoreContract(t, NewMemStore[chatState]())
}

func TestMemStore_LoadReturnsIsolatedCopy(t *testing.T) {
	st := NewMemStore[chatState]()
	ctx := context.Background()

	snap := Snapshot[chatState]{State: chatState{Messages: []string{"original"}}}
	if err := st.SaveSnapshot(ctx, "t1", snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	first, err := st.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	first.State.Messages[0] = "mutated"

	second, err := st.LoadSnapshot(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if second.State.Messages[0] != "original" {
		t.Error("mutating a loaded snapshot leaked into the store")
	}
}
