package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/convograph/bot/model"
	"github.com/dshills/convograph/bot/tools"
)

func openAgentCatalog(t *testing.T) *tools.Catalog {
	t.Helper()
	catalog, err := tools.OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	return catalog
}

func TestAgentsGreetingFallback(t *testing.T) {
	agents := NewAgents(openAgentCatalog(t), nil)

	reply := agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "hey"})
	if !strings.Contains(reply, "Welcome to the music store") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAgentsCatalogueFallback(t *testing.T) {
	agents := NewAgents(openAgentCatalog(t), nil)

	reply := agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "do you have Smoke On The Water"})
	if !strings.Contains(reply, "Smoke On The Water by Deep Purple") {
		t.Errorf("reply = %q", reply)
	}

	reply = agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "xyzzy plugh"})
	if !strings.Contains(reply, "couldn't find anything matching") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAgentsCustomerFallback(t *testing.T) {
	agents := NewAgents(openAgentCatalog(t), nil)

	reply := agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "show me my account"})
	if !strings.Contains(reply, "luisg@embraer.com.br") {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(reply, "+19144342859") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAgentsUseModelWhenConfigured(t *testing.T) {
	mock := &model.MockChatModel{Responses: []string{"We have plenty of rock."}}
	agents := NewAgents(openAgentCatalog(t), mock)

	reply := agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "got any rock?"})
	if reply != "We have plenty of rock." {
		t.Errorf("reply = %q", reply)
	}

	// The system prompt goes first, the transcript after.
	calls := mock.Calls
	if len(calls) != 1 || len(calls[0]) == 0 || calls[0][0].Role != model.RoleSystem {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAgentsModelErrorReply(t *testing.T) {
	mock := &model.MockChatModel{Err: errors.New("rate limited")}
	agents := NewAgents(openAgentCatalog(t), mock)

	reply := agents.Reply(context.Background(), AppState{UserID: 1, LastUserMsg: "got any rock?"})
	want := "I apologize, but I encountered an error: rate limited. Please try again."
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestSearchTermStripsQuestionFraming(t *testing.T) {
	cases := []struct{ in, want string }{
		{"do you have Black Dog", "Black Dog"},
		{"Search for hotel california", "hotel california"},
		{"Black Dog", "Black Dog"},
	}
	for _, tc := range cases {
		if got := searchTerm(tc.in); got != tc.want {
			t.Errorf("searchTerm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
