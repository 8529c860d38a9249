package bot

import (
	"context"
	"strings"

	"github.com/dshills/convograph/bot/model"
	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
)

// Config bundles the dependencies of the support bot graph.
type Config struct {
	Catalog     *tools.Catalog
	Verifier    *tools.Verifier
	LyricSearch *tools.LyricSearch
	VideoSearch *tools.VideoSearch
	Gateway     *tools.PaymentGateway

	// ChatModel powers routing and normal conversation. Nil is valid:
	// the bot then runs on its deterministic classifiers and catalogue
	// lookups, which is also how the tests exercise it.
	ChatModel model.ChatModel
}

// conversationEnders mark the assistant's closing lines. A bare greeting
// right after one of these starts a fresh conversation, so the agents get
// a trimmed transcript instead of stale context.
var conversationEnders = []string{
	"is there anything else i can help with",
	"let me know if you need anything else",
	"let me know if you change your mind",
	"what else can i help you with",
	"anything else i can help with",
}

var simpleGreetings = []string{"hi", "hello", "hey", "hi there", "hello there", "hey there"}

// NewAppGraph builds the root conversation graph: ingest the user turn,
// classify intent, then hand off to normal conversation or one of the
// email, lyrics and purchase sub-flows.
func NewAppGraph(cfg Config) (*graph.Graph[AppState], error) {
	router := NewRouter(cfg.ChatModel)
	agents := NewAgents(cfg.Catalog, cfg.ChatModel)

	paymentForLyrics, err := newPaymentGraph(cfg.Catalog, cfg.Gateway)
	if err != nil {
		return nil, err
	}
	paymentForPurchase, err := newPaymentGraph(cfg.Catalog, cfg.Gateway)
	if err != nil {
		return nil, err
	}

	emailGraph, err := newEmailGraph(cfg.Catalog, cfg.Verifier)
	if err != nil {
		return nil, err
	}
	lyricsGraph, err := newLyricsGraph(cfg.Catalog, cfg.LyricSearch, cfg.VideoSearch, paymentForLyrics)
	if err != nil {
		return nil, err
	}
	purchaseGraph, err := newPurchaseGraph(cfg.Catalog, paymentForPurchase)
	if err != nil {
		return nil, err
	}

	b := newBuilder()

	b.add("ingest", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		delta := AppState{
			NewTurn: true,
			Messages: []ChatMessage{
				{Role: "user", Content: state.LastUserMsg},
			},
		}
		// A finished email flow must not be re-entered by accident on
		// the next turn.
		if emailFlowFinished(state.Email) {
			delta.Email = &EmailFlow{}
		}
		return graph.StepResult[AppState]{Delta: delta}
	})

	b.add("route_intent", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		route := router.Classify(ctx, state)
		return graph.StepResult[AppState]{Delta: AppState{Route: route}}
	})

	b.add("normal_conversation", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		reply := agents.Reply(ctx, trimForFreshStart(state))
		return graph.StepResult[AppState]{
			Delta: AppState{
				Messages:          []ChatMessage{{Role: "assistant", Content: reply}},
				AssistantMessages: say(reply),
			},
			Route: graph.Stop(),
		}
	})

	b.addSubgraph("email_flow", emailGraph)
	b.addSubgraph("lyrics_flow", lyricsGraph)
	b.addSubgraph("purchase_flow", purchaseGraph)

	b.startAt("ingest")
	b.connect("ingest", "route_intent", nil)
	b.connect("route_intent", "email_flow", func(state AppState) bool {
		return state.Route == RouteUpdateEmail
	})
	b.connect("route_intent", "lyrics_flow", func(state AppState) bool {
		return state.Route == RouteLyrics
	})
	b.connect("route_intent", "purchase_flow", func(state AppState) bool {
		return state.Route == RoutePurchase
	})
	b.connect("route_intent", "normal_conversation", nil)
	b.connect("email_flow", graph.End, nil)
	b.connect("lyrics_flow", graph.End, nil)
	b.connect("purchase_flow", graph.End, nil)

	return b.build()
}

// trimForFreshStart drops stale history when the user opens a new
// conversation with a bare greeting right after the assistant's closing
// line, so old context does not color the greeting.
func trimForFreshStart(state AppState) AppState {
	lastMsg := strings.ToLower(strings.TrimSpace(state.LastUserMsg))

	greeting := false
	for _, g := range simpleGreetings {
		if lastMsg == g {
			greeting = true
			break
		}
	}
	if !greeting {
		return state
	}

	var lastAssistant string
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == "assistant" {
			lastAssistant = strings.ToLower(state.Messages[i].Content)
			break
		}
	}
	if !containsAny(lastAssistant, conversationEnders) {
		return state
	}

	state.Messages = []ChatMessage{{Role: "user", Content: state.LastUserMsg}}
	return state
}
