// Package model provides LLM chat adapters for the bot's conversational
// steps (intent routing and free-form agent replies).
package model

import "context"

// ChatModel is the interface the bot uses to talk to an LLM provider.
//
// Implementations convert the provider-neutral Message slice into the
// provider's request format, issue the call, and return the generated
// text. They should respect context cancellation and handle retries for
// transient failures internally.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	reply, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You are a helpful music store assistant."},
//	    {Role: model.RoleUser, Content: "What do you have by AC/DC?"},
//	})
type ChatModel interface {
	// Chat sends the conversation to the LLM and returns the reply text.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Standard role constants, aligned with the conventions used by the
// major providers.
const (
	// RoleSystem sets context or instructions; appears first.
	RoleSystem = "system"

	// RoleUser is input from the human user.
	RoleUser = "user"

	// RoleAssistant is a prior LLM reply.
	RoleAssistant = "assistant"
)
