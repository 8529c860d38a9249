package google

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/convograph/bot/model"
)

type fakeClient struct {
	text   string
	errs   []error
	calls  int
	system string
	prompt string
}

func (f *fakeClient) generateContent(ctx context.Context, systemPrompt, prompt string) (string, error) {
	f.system = systemPrompt
	f.prompt = prompt
	idx := f.calls
	f.calls++
	if idx < len(f.errs) {
		return "", f.errs[idx]
	}
	return f.text, nil
}

func newTestModel(client geminiClient) *ChatModel {
	return &ChatModel{
		client:     client,
		modelName:  DefaultModel,
		maxRetries: 3,
		retryDelay: time.Millisecond,
	}
}

func TestChatFlattensConversation(t *testing.T) {
	client := &fakeClient{text: "Paris"}
	m := newTestModel(client)

	got, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleUser, Content: "Capital of France?"},
		{Role: model.RoleAssistant, Content: "Paris."},
		{Role: model.RoleUser, Content: "Of Spain?"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "Paris" {
		t.Errorf("Chat() = %q, want %q", got, "Paris")
	}
	if client.system != "be brief" {
		t.Errorf("system = %q, want %q", client.system, "be brief")
	}
	for _, want := range []string{"User: Capital of France?", "Assistant: Paris.", "User: Of Spain?"} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt %q missing %q", client.prompt, want)
		}
	}
}

func TestChatRetriesUnavailable(t *testing.T) {
	client := &fakeClient{
		text: "ok",
		errs: []error{errors.New("rpc error: code = Unavailable")},
	}
	m := newTestModel(client)

	got, err := m.Chat(context.Background(), nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Chat() = %q, want %q", got, "ok")
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestChatDoesNotRetryInvalidArgument(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("rpc error: code = InvalidArgument")}}
	m := newTestModel(client)

	_, err := m.Chat(context.Background(), nil)
	if err == nil {
		t.Fatal("Chat() expected error")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", client.calls)
	}
}

func TestNewChatModelRequiresAPIKey(t *testing.T) {
	if _, err := NewChatModel(context.Background(), "", ""); err == nil {
		t.Fatal("NewChatModel() expected error for empty API key")
	}
}

func TestCloseWithoutClient(t *testing.T) {
	m := &ChatModel{}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
