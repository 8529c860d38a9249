package anthropic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/convograph/bot/model"
)

type fakeClient struct {
	text   string
	errs   []error
	calls  int
	system string
	msgs   []model.Message
}

func (f *fakeClient) createMessage(ctx context.Context, systemPrompt string, messages []model.Message) (string, error) {
	f.system = systemPrompt
	f.msgs = messages
	idx := f.calls
	f.calls++
	if idx < len(f.errs) {
		return "", f.errs[idx]
	}
	return f.text, nil
}

func newTestModel(client anthropicClient) *ChatModel {
	return &ChatModel{
		client:     client,
		modelName:  DefaultModel,
		maxRetries: 3,
		retryDelay: time.Millisecond,
	}
}

func TestChatExtractsSystemPrompt(t *testing.T) {
	client := &fakeClient{text: "Paris"}
	m := newTestModel(client)

	got, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleUser, Content: "Capital of France?"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "Paris" {
		t.Errorf("Chat() = %q, want %q", got, "Paris")
	}
	if client.system != "be brief" {
		t.Errorf("system prompt = %q, want %q", client.system, "be brief")
	}
	if len(client.msgs) != 1 || client.msgs[0].Role != model.RoleUser {
		t.Errorf("conversation = %v, want single user message", client.msgs)
	}
}

func TestExtractSystemPromptConcatenates(t *testing.T) {
	sys, conv := extractSystemPrompt([]model.Message{
		{Role: model.RoleSystem, Content: "one"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleSystem, Content: "two"},
	})
	if sys != "one\n\ntwo" {
		t.Errorf("system = %q, want %q", sys, "one\n\ntwo")
	}
	if len(conv) != 1 {
		t.Errorf("conversation length = %d, want 1", len(conv))
	}
}

func TestChatRetriesOverloaded(t *testing.T) {
	client := &fakeClient{
		text: "ok",
		errs: []error{errors.New("overloaded_error: try again"), errors.New("529")},
	}
	m := newTestModel(client)

	got, err := m.Chat(context.Background(), nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Chat() = %q, want %q", got, "ok")
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestChatDoesNotRetryBadRequest(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("invalid_request_error: bad params")}}
	m := newTestModel(client)

	_, err := m.Chat(context.Background(), nil)
	if err == nil {
		t.Fatal("Chat() expected error")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", client.calls)
	}
}

func TestConvertMessagesRoles(t *testing.T) {
	converted := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	})
	if len(converted) != 2 {
		t.Fatalf("len = %d, want 2", len(converted))
	}
	if converted[0].Role != "user" {
		t.Errorf("messages[0].Role = %q, want user", converted[0].Role)
	}
	if converted[1].Role != "assistant" {
		t.Errorf("messages[1].Role = %q, want assistant", converted[1].Role)
	}
}
