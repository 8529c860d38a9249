package bot

import (
	"context"
	"regexp"
	"strings"

	"github.com/dshills/convograph/bot/model"
)

const routerSystemPrompt = `You are a routing agent for a music store customer support chatbot.

Your job is to analyze the user's message and decide which handler should process it.

## Available Routes

1. **normal** - Use for:
   - General greetings and conversation (ALWAYS use for: "hi", "hello", "hey", "thanks", "ok", "yes", "no")
   - Questions about music, albums, artists, tracks in our catalogue
   - Questions about customer account info (but NOT changing email)
   - Responses to "Is there anything else I can help with?" or similar closing questions
   - Anything that doesn't fit the other categories
   - IMPORTANT: Simple greetings or single words that could be lyrics should be treated as normal conversation unless the user is explicitly trying to identify a song

2. **update_email** - Use for:
   - Requests to change or update email address
   - "I want to change my email"
   - "Update my email to..."
   - "Can you change my contact email?"

3. **lyrics_search** - Use ONLY when:
   - User is EXPLICITLY trying to identify a song by providing lyrics
   - User asks "What song has..." or "What song goes like..."
   - User provides multiple words/phrases that are clearly lyrics
   - User describes a song they're looking for with lyrics
   - DO NOT use for single words, greetings, or casual conversation that happens to contain words that appear in songs

4. **purchase** - Use when the user is trying to BUY a specific song/track, e.g.:
   - "can I buy it?" / "buy it" / "purchase it"
   - "I want to purchase [song title]" / "buy [song title]"
   - "purchase track id 2269" / "buy track 2269"
   - Any message clearly about paying/checkout for a song (not just asking about catalogue availability)

## Important Rules

- Simple greetings like "hi", "hello", "hey" are ALWAYS "normal", even if they appear in song lyrics
- If the assistant just asked "Is there anything else I can help with?", responses like "hi", "yes", "no", "thanks" should be "normal"
- "lyrics_search" requires clear intent to identify a song - not just saying a word that happens to be in lyrics
- "purchase" is only for buying/checkout. If the user is only browsing or asking about price/availability, choose "normal".
- When in doubt, choose "normal"

Reply with exactly one word: normal, update_email, lyrics_search, or purchase.`

var (
	emailIntentPattern    = regexp.MustCompile(`(?i)\b(update|change|modify|new)\b.*\bemail\b|\bemail\b.*\b(update|change|modify)\b`)
	lyricsIntentPattern   = regexp.MustCompile(`(?i)what song|song (that )?(has|goes|with)|lyrics?|song like`)
	purchaseIntentPattern = regexp.MustCompile(`(?i)\b(buy|purchase|checkout|pay for)\b`)
	greetingPattern       = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|ok|okay|yes|no)[!.? ]*$`)
)

// explicitEmailKeywords gate re-entry into a finished email flow: once the
// flow has completed, the user has to ask again in so many words.
var explicitEmailKeywords = []string{"update", "change", "modify", "new email"}

// Router classifies the user's latest message into one of the intent
// routes. When a chat model is configured it is asked first; the keyword
// classifier is both the no-model path and the fallback for model errors
// or unparseable replies.
type Router struct {
	chatModel model.ChatModel
}

// NewRouter returns a router backed by the given model. A nil model is
// fine; classification is then purely keyword based.
func NewRouter(chatModel model.ChatModel) *Router {
	return &Router{chatModel: chatModel}
}

// Classify returns the route for the current turn.
func (r *Router) Classify(ctx context.Context, state AppState) string {
	route := r.classify(ctx, state)

	// A completed email flow should not swallow follow-up chatter.
	// "yes" or "my email" right after the flow finished is conversation,
	// not a fresh update request.
	if route == RouteUpdateEmail && emailFlowFinished(state.Email) {
		if !containsAny(strings.ToLower(state.LastUserMsg), explicitEmailKeywords) {
			return RouteNormal
		}
	}
	return route
}

func (r *Router) classify(ctx context.Context, state AppState) string {
	if r.chatModel != nil {
		if route, ok := r.classifyWithModel(ctx, state); ok {
			return route
		}
	}
	return classifyByKeywords(state.LastUserMsg)
}

func (r *Router) classifyWithModel(ctx context.Context, state AppState) (string, bool) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: routerSystemPrompt},
	}
	// A short transcript tail gives the model the "anything else?" context.
	for _, msg := range transcriptTail(state.Messages, 6) {
		messages = append(messages, model.Message{Role: msg.Role, Content: msg.Content})
	}

	reply, err := r.chatModel.Chat(ctx, messages)
	if err != nil {
		return "", false
	}
	return parseRoute(reply)
}

// parseRoute extracts a route name from a model reply, tolerating
// punctuation and surrounding prose.
func parseRoute(reply string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(reply))
	for _, route := range []string{RouteUpdateEmail, RouteLyrics, RoutePurchase, RouteNormal} {
		if strings.Contains(cleaned, route) {
			return route, true
		}
	}
	return "", false
}

// classifyByKeywords is the deterministic classifier used when no model
// is configured. Order matters: greetings win, then email, purchase,
// lyrics, and finally normal as the catch-all.
func classifyByKeywords(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" || greetingPattern.MatchString(trimmed) {
		return RouteNormal
	}
	if emailIntentPattern.MatchString(trimmed) {
		return RouteUpdateEmail
	}
	if purchaseIntentPattern.MatchString(trimmed) {
		return RoutePurchase
	}
	if lyricsIntentPattern.MatchString(trimmed) {
		return RouteLyrics
	}
	return RouteNormal
}

func emailFlowFinished(f *EmailFlow) bool {
	if f == nil {
		return false
	}
	switch f.Status {
	case StatusDone, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// transcriptTail returns the last n messages of the transcript.
func transcriptTail(messages []ChatMessage, n int) []ChatMessage {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
