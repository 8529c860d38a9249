package emit

import (
	"fmt"
	"sync"
	"testing"
)

func TestBufferedEmitter_RecordsPerThread(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{ThreadID: "a", Step: 1, StepID: "ingest", Msg: "step completed"})
	emitter.Emit(Event{ThreadID: "a", Step: 2, StepID: "route", Msg: "step completed"})
	emitter.Emit(Event{ThreadID: "b", Step: 1, StepID: "ingest", Msg: "step completed"})

	if got := emitter.GetHistory("a"); len(got) != 2 {
		t.Fatalf("thread a history length = %d, want 2", len(got))
	}
	if got := emitter.GetHistory("b"); len(got) != 1 {
		t.Fatalf("thread b history length = %d, want 1", len(got))
	}
	if got := emitter.GetHistory("missing"); len(got) != 0 {
		t.Fatalf("unknown thread history length = %d, want 0", len(got))
	}
}

func TestBufferedEmitter_Filter(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{ThreadID: "a", Step: 1, StepID: "ingest", Msg: "step completed"})
	emitter.Emit(Event{ThreadID: "a", Step: 2, StepID: "verify", Msg: "suspended"})
	emitter.Emit(Event{ThreadID: "a", Step: 3, StepID: "verify", Msg: "step completed"})

	tests := []struct {
		name   string
		filter HistoryFilter
		want   int
	}{
		{"by step id", HistoryFilter{StepID: "verify"}, 2},
		{"by msg", HistoryFilter{Msg: "suspended"}, 1},
		{"by step id and msg", HistoryFilter{StepID: "verify", Msg: "step completed"}, 1},
		{"by step range", HistoryFilter{MinStep: intPtr(2), MaxStep: intPtr(3)}, 2},
		{"no match", HistoryFilter{StepID: "missing"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := emitter.GetHistoryWithFilter("a", tt.filter)
			if len(got) != tt.want {
				t.Errorf("filtered history length = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{ThreadID: "a", Step: 1, Msg: "step completed"})
	emitter.Emit(Event{ThreadID: "b", Step: 1, Msg: "step completed"})

	emitter.Clear("a")
	if len(emitter.GetHistory("a")) != 0 {
		t.Error("expected thread a history cleared")
	}
	if len(emitter.GetHistory("b")) != 1 {
		t.Error("expected thread b history untouched")
	}

	emitter.ClearAll()
	if len(emitter.GetHistory("b")) != 0 {
		t.Error("expected all history cleared")
	}
}

func TestBufferedEmitter_ConcurrentEmit(t *testing.T) {
	emitter := NewBufferedEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", n%2)
			for j := 0; j < 50; j++ {
				emitter.Emit(Event{ThreadID: threadID, Step: j, Msg: "step completed"})
			}
		}(i)
	}
	wg.Wait()

	total := len(emitter.GetHistory("thread-0")) + len(emitter.GetHistory("thread-1"))
	if total != 500 {
		t.Errorf("total events = %d, want 500", total)
	}
}

func intPtr(n int) *int { return &n }
