package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/convograph/bot/model"
	"github.com/dshills/convograph/bot/tools"
)

const musicSystemPrompt = `You are a helpful music store assistant. Your job is to help customers find music in our catalogue.

When a customer asks about music:
1. Present only music from our catalogue in a friendly, helpful way
2. If nothing matches, let them know politely
3. Never make up or guess information

If a customer just says "hi", "hello", or "hey", respond with a friendly greeting and ask how you can help them find music. For email updates, lyrics identification, or purchases, the customer will be routed to a different assistant.

Be conversational and helpful. Format results nicely when presenting them to customers.`

const customerSystemPrompt = `You are a helpful customer service assistant for a music store.

Your job is to help customers with questions about their account information.

IMPORTANT SECURITY RULES:
- You can ONLY access information for the current logged-in user
- Never reveal information about other customers

For email updates/changes, let the customer know they'll need to go through a verification process. Do not try to update emails directly - that's handled by a different system.

Be helpful and friendly. Protect customer privacy.`

// customerKeywords decide which agent handles a normal-conversation turn.
// Any hit sends the turn to the customer agent.
var customerKeywords = []string{
	"account", "email", "phone", "address", "profile",
	"info", "invoice", "purchase", "order",
}

// Agents answers normal-conversation turns. The music agent handles
// catalogue chatter, the customer agent account questions. Both consult
// the chat model when one is configured and fall back to deterministic
// catalogue/account lookups when not.
type Agents struct {
	catalog   *tools.Catalog
	chatModel model.ChatModel
}

// NewAgents returns the conversation agents. chatModel may be nil.
func NewAgents(catalog *tools.Catalog, chatModel model.ChatModel) *Agents {
	return &Agents{catalog: catalog, chatModel: chatModel}
}

// Reply produces the assistant reply for a normal-conversation turn.
func (a *Agents) Reply(ctx context.Context, state AppState) string {
	lower := strings.ToLower(state.LastUserMsg)
	if containsAny(lower, customerKeywords) {
		return a.customerReply(ctx, state)
	}
	return a.musicReply(ctx, state)
}

func (a *Agents) musicReply(ctx context.Context, state AppState) string {
	if a.chatModel != nil {
		reply, err := a.chat(ctx, musicSystemPrompt, state)
		if err != nil {
			return errorReply(err)
		}
		return reply
	}
	return a.musicFallback(ctx, state.LastUserMsg)
}

func (a *Agents) customerReply(ctx context.Context, state AppState) string {
	if a.chatModel != nil {
		reply, err := a.chat(ctx, customerSystemPrompt, state)
		if err != nil {
			return errorReply(err)
		}
		return reply
	}
	return a.customerFallback(ctx, state.UserID)
}

func (a *Agents) chat(ctx context.Context, systemPrompt string, state AppState) (string, error) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
	}
	for _, msg := range transcriptTail(state.Messages, 12) {
		messages = append(messages, model.Message{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 1 && state.LastUserMsg != "" {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: state.LastUserMsg})
	}
	return a.chatModel.Chat(ctx, messages)
}

// musicFallback answers without a model: greet, or search the catalogue
// for the message text and list what matched.
func (a *Agents) musicFallback(ctx context.Context, msg string) string {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" || greetingPattern.MatchString(trimmed) {
		return "Hello! Welcome to the music store. How can I help you find music today?"
	}

	matches, err := a.catalog.SearchTracksByTitle(ctx, searchTerm(trimmed), 5)
	if err != nil {
		return errorReply(err)
	}
	if len(matches) == 0 {
		return "I couldn't find anything matching that in our catalogue. Could you tell me an artist or song title to look for?"
	}

	var b strings.Builder
	b.WriteString("Here's what I found in our catalogue:\n")
	for _, track := range matches {
		fmt.Fprintf(&b, "- %s by %s ($%.2f) [Track ID: %d]\n", track.Name, track.Artist, track.UnitPrice, track.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agents) customerFallback(ctx context.Context, userID int) string {
	contact, err := a.catalog.CustomerContact(ctx, userID)
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf(
		"Here's the contact info we have on file:\n- Email: %s\n- Phone: %s\n\nIf you'd like to change your email, just ask and I'll start the verification process.",
		contact.Email, contact.Phone,
	)
}

// searchTerm strips common question framing so "do you have thunderstruck"
// still finds the track.
func searchTerm(msg string) string {
	lower := strings.ToLower(msg)
	for _, prefix := range []string{
		"do you have ", "have you got ", "what about ", "looking for ",
		"i want ", "find ", "search for ", "search ", "play ",
	} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(msg[len(prefix):])
		}
	}
	return msg
}

func errorReply(err error) string {
	return fmt.Sprintf("I apologize, but I encountered an error: %v. Please try again.", err)
}
