package graph

// End is the terminal edge destination. Connecting a step to End declares
// that the graph finishes after that step; inside a subgraph, control
// returns to the parent graph instead.
const End = "__end__"

// Graph is a named step registry plus the static edges between steps.
//
// A Graph is pure topology: it holds no execution state and can be built
// once and shared by any number of threads. Graphs nest: AddSubgraph
// registers an entire inner graph as a single step of this one, and the
// engine runs the inner steps with the same commit granularity as native
// steps.
//
// Build order is flexible: edges may reference steps added later. The
// engine validates step existence at execution time.
//
// Type parameter S is the state type shared across the workflow.
type Graph[S any] struct {
	steps map[string]Step[S]
	edges []Edge[S]
	entry string
}

// NewGraph creates an empty graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{steps: make(map[string]Step[S])}
}

// Add registers a step under a unique id.
func (g *Graph[S]) Add(stepID string, step Step[S]) error {
	if stepID == "" {
		return &EngineError{Message: "step ID cannot be empty"}
	}
	if stepID == End {
		return &EngineError{Message: "step ID " + End + " is reserved"}
	}
	if step == nil {
		return &EngineError{Message: "step cannot be nil"}
	}
	if _, exists := g.steps[stepID]; exists {
		return &EngineError{Message: "duplicate step ID: " + stepID, Code: "DUPLICATE_STEP"}
	}
	g.steps[stepID] = step
	return nil
}

// AddSubgraph registers a complete inner graph as one step of this graph.
//
// The engine expands the subgraph in place: entering the step pushes a
// frame and continues the normal loop with the inner graph's steps, edges
// and entry point, sharing this graph's state and message mechanics. Each
// inner step commits individually, and a suspension raised inside the
// subgraph surfaces to the caller exactly as if this graph had suspended.
// When the inner graph terminates, routing continues from this step's
// default edge.
func (g *Graph[S]) AddSubgraph(stepID string, sub *Graph[S]) error {
	if sub == nil {
		return &EngineError{Message: "subgraph cannot be nil"}
	}
	return g.Add(stepID, &subgraphStep[S]{graph: sub})
}

// StartAt sets the entry step. The step must already be registered.
func (g *Graph[S]) StartAt(stepID string) error {
	if stepID == "" {
		return &EngineError{Message: "entry step ID cannot be empty"}
	}
	if _, exists := g.steps[stepID]; !exists {
		return &EngineError{Message: "entry step does not exist: " + stepID, Code: "STEP_NOT_FOUND"}
	}
	g.entry = stepID
	return nil
}

// Connect declares a default edge between two steps, optionally guarded by
// a predicate. Use End as the destination to terminate the graph. A step's
// explicit Goto overrides these edges.
func (g *Graph[S]) Connect(from, to string, when Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from step ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to step ID cannot be empty"}
	}
	g.edges = append(g.edges, Edge[S]{From: from, To: to, When: when})
	return nil
}

// step looks up a registered step.
func (g *Graph[S]) step(stepID string) (Step[S], bool) {
	s, ok := g.steps[stepID]
	return s, ok
}

// nextEdge evaluates the default edges out of a step in declaration order
// and returns the first match, or "" when no edge applies.
func (g *Graph[S]) nextEdge(from string, state S) string {
	for _, edge := range g.edges {
		if edge.From != from {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}
