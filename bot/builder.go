package bot

import (
	"context"

	"github.com/dshills/convograph/graph"
)

// stepFn is the signature flow steps are written in.
type stepFn func(ctx context.Context, state AppState) graph.StepResult[AppState]

// graphBuilder collects graph construction calls and remembers the first
// error, so flow constructors read as a flat list of steps and edges.
type graphBuilder struct {
	g   *graph.Graph[AppState]
	err error
}

func newBuilder() *graphBuilder {
	return &graphBuilder{g: graph.NewGraph[AppState]()}
}

func (b *graphBuilder) add(id string, fn stepFn) {
	if b.err == nil {
		b.err = b.g.Add(id, graph.StepFunc[AppState](fn))
	}
}

func (b *graphBuilder) addSubgraph(id string, sub *graph.Graph[AppState]) {
	if b.err == nil {
		b.err = b.g.AddSubgraph(id, sub)
	}
}

func (b *graphBuilder) startAt(id string) {
	if b.err == nil {
		b.err = b.g.StartAt(id)
	}
}

func (b *graphBuilder) connect(from, to string, when graph.Predicate[AppState]) {
	if b.err == nil {
		b.err = b.g.Connect(from, to, when)
	}
}

func (b *graphBuilder) build() (*graph.Graph[AppState], error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.g, nil
}
