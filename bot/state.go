// Package bot implements the music store support assistant: the
// conversation state, intent routing, and the email, lyrics, purchase and
// payment workflows, all expressed as graphs executed by the engine.
package bot

import (
	"github.com/dshills/convograph/graph/wire"
)

// Intent routes out of the router step.
const (
	RouteNormal      = "normal"
	RouteUpdateEmail = "update_email"
	RouteLyrics      = "lyrics_search"
	RoutePurchase    = "purchase"
)

// Flow statuses shared by the sub-flows.
const (
	StatusActive    = "active"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// ChatMessage is one turn of the user/assistant transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmailFlow tracks the email update workflow.
type EmailFlow struct {
	Status         string `json:"status"`
	CurrentEmail   string `json:"current_email"`
	Phone          string `json:"phone"`
	VerificationID string `json:"verification_id"`
	AttemptsLeft   int    `json:"attempts_left"`
	ProposedEmail  string `json:"proposed_email"`
	Error          string `json:"error,omitempty"`
}

// LyricsFlow tracks the song identification workflow.
type LyricsFlow struct {
	Status      string  `json:"status"`
	Query       string  `json:"query"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	InCatalogue bool    `json:"in_catalogue"`
	Owned       bool    `json:"owned"`
	TrackID     int     `json:"track_id,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	VideoID     string  `json:"video_id,omitempty"`
	VideoURL    string  `json:"video_url,omitempty"`
}

// PaymentItem is one item in a payment order.
type PaymentItem struct {
	TrackID   int     `json:"track_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}

// PaymentFlow tracks the checkout workflow.
type PaymentFlow struct {
	Status        string        `json:"status"`
	Items         []PaymentItem `json:"items"`
	Total         float64       `json:"total"`
	IntentID      string        `json:"intent_id"`
	TransactionID string        `json:"transaction_id,omitempty"`
	InvoiceID     int           `json:"invoice_id,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// PurchaseFlow tracks the track resolution workflow that feeds checkout.
type PurchaseFlow struct {
	Status          string `json:"status"`
	Request         string `json:"request"`
	ParsedTrackID   int    `json:"parsed_track_id,omitempty"`
	NumericRef      int    `json:"numeric_ref,omitempty"`
	CandidateTracks []int  `json:"candidate_track_ids,omitempty"`
	SelectedTrackID int    `json:"selected_track_id,omitempty"`
}

// AppState is the conversation state shared by every step of the bot.
//
// Steps return partial AppState deltas; Reduce merges them. List fields
// (Messages, AssistantMessages, LastTrackIDs) append or replace as
// documented on Reduce, scalars overwrite only when set, and the flow
// pointers replace wholesale when non-nil.
type AppState struct {
	// Messages is the full user/assistant transcript.
	Messages []ChatMessage `json:"messages"`

	// UserID identifies the customer.
	UserID int `json:"user_id"`

	// LastUserMsg is the latest user input, set by the ingest step.
	LastUserMsg string `json:"last_user_msg"`

	// Route is the classified intent for the current turn.
	Route string `json:"route"`

	// Verified is set once the user has passed phone verification.
	Verified bool `json:"verified,omitempty"`

	// Email, Lyrics, Payment and Purchase hold per-flow progress; nil
	// when the flow has never run.
	Email    *EmailFlow    `json:"email_flow,omitempty"`
	Lyrics   *LyricsFlow   `json:"lyrics_flow,omitempty"`
	Payment  *PaymentFlow  `json:"payment,omitempty"`
	Purchase *PurchaseFlow `json:"purchase_flow,omitempty"`

	// LastTrackIDs remembers the track ids most recently shown to the
	// user, so "buy the second one" can be resolved next turn.
	LastTrackIDs []int `json:"last_track_ids,omitempty"`

	// AssistantMessages collects the payloads produced this turn. The
	// ingest step clears it so each response contains only new output.
	AssistantMessages []wire.AssistantPayload `json:"assistant_messages"`

	// NewTurn marks a delta produced by the ingest step: the reducer
	// resets AssistantMessages before applying the rest of the delta.
	NewTurn bool `json:"-"`
}

// Reduce merges a step delta into the accumulated state.
//
// Semantics:
//   - Messages append.
//   - AssistantMessages append, unless delta.NewTurn resets them first.
//   - Scalars overwrite when the delta sets a non-zero value.
//   - Flow pointers and LastTrackIDs replace wholesale when non-nil.
func Reduce(prev, delta AppState) AppState {
	if delta.NewTurn {
		prev.AssistantMessages = nil
	}

	prev.Messages = append(prev.Messages, delta.Messages...)
	prev.AssistantMessages = append(prev.AssistantMessages, delta.AssistantMessages...)

	if delta.UserID != 0 {
		prev.UserID = delta.UserID
	}
	if delta.LastUserMsg != "" {
		prev.LastUserMsg = delta.LastUserMsg
	}
	if delta.Route != "" {
		prev.Route = delta.Route
	}
	if delta.Verified {
		prev.Verified = true
	}

	if delta.Email != nil {
		prev.Email = delta.Email
	}
	if delta.Lyrics != nil {
		prev.Lyrics = delta.Lyrics
	}
	if delta.Payment != nil {
		prev.Payment = delta.Payment
	}
	if delta.Purchase != nil {
		prev.Purchase = delta.Purchase
	}
	if delta.LastTrackIDs != nil {
		prev.LastTrackIDs = delta.LastTrackIDs
	}

	return prev
}

// say wraps a plain text reply as an assistant payload list.
func say(text string) []wire.AssistantPayload {
	return []wire.AssistantPayload{wire.Text(text)}
}

// emailCopy returns a copy of the flow so steps never mutate shared state.
func emailCopy(f *EmailFlow) *EmailFlow {
	if f == nil {
		return &EmailFlow{}
	}
	dup := *f
	return &dup
}

func lyricsCopy(f *LyricsFlow) *LyricsFlow {
	if f == nil {
		return &LyricsFlow{}
	}
	dup := *f
	return &dup
}

func paymentCopy(f *PaymentFlow) *PaymentFlow {
	if f == nil {
		return &PaymentFlow{}
	}
	dup := *f
	dup.Items = append([]PaymentItem(nil), f.Items...)
	return &dup
}

func purchaseCopy(f *PurchaseFlow) *PurchaseFlow {
	if f == nil {
		return &PurchaseFlow{}
	}
	dup := *f
	dup.CandidateTracks = append([]int(nil), f.CandidateTracks...)
	return &dup
}
