// Package wire defines the JSON payloads exchanged between the workflow
// engine and its callers: suspension prompts, assistant messages, and the
// invoke/resume request and response envelopes.
//
// These shapes are the external contract of the engine. Steps build them,
// the engine persists them inside snapshots, and the HTTP layer serializes
// them verbatim. Keep them free of behavior and engine internals.
package wire

// Suspension kinds. A confirm suspension offers a fixed set of choices
// (typically Yes/No); an input suspension requests free text.
const (
	SuspendConfirm = "confirm"
	SuspendInput   = "input"
)

// Suspension describes the human input a suspended workflow is waiting for.
// It is the only engine artifact ever shown to a person, and it must stay
// JSON-serializable: a Suspension is stored inside the thread snapshot and
// may be rendered long after the process that created it has exited.
type Suspension struct {
	// Type is SuspendConfirm or SuspendInput.
	Type string `json:"type"`

	// Title is a short heading for the prompt dialog.
	Title string `json:"title"`

	// Text is the question being asked.
	Text string `json:"text"`

	// Choices lists the allowed answers for a confirm suspension.
	Choices []string `json:"choices,omitempty"`

	// Placeholder is example text for an input suspension.
	Placeholder string `json:"placeholder,omitempty"`

	// Context is an optional pre-question message, shown above Text.
	Context string `json:"context,omitempty"`
}

// Confirm builds a Yes/No confirm suspension.
func Confirm(title, text string) *Suspension {
	return &Suspension{
		Type:    SuspendConfirm,
		Title:   title,
		Text:    text,
		Choices: []string{"Yes", "No"},
	}
}

// Input builds a free-text input suspension.
func Input(title, text, placeholder string) *Suspension {
	return &Suspension{
		Type:        SuspendInput,
		Title:       title,
		Text:        text,
		Placeholder: placeholder,
	}
}

// WithContext returns a copy of the suspension carrying a pre-question
// context message.
func (s *Suspension) WithContext(context string) *Suspension {
	dup := *s
	dup.Context = context
	return &dup
}

// DeclineValue is the documented resume value for a caller that dismisses
// the prompt without answering: "No" for confirm, empty string for input.
// This is a client-side policy, not an engine invariant; the step that
// raised the suspension must treat the value as a decline, not an error.
func (s *Suspension) DeclineValue() string {
	if s.Type == SuspendConfirm {
		return "No"
	}
	return ""
}

// Assistant payload kinds.
const (
	PayloadText    = "text"
	PayloadEmbed   = "embed"
	PayloadInvoice = "invoice"
)

// AssistantPayload is one caller-visible output of a workflow turn,
// discriminated by Type. Text payloads use Text; embed payloads use
// Provider/URL/VideoID; invoice payloads use the invoice fields.
type AssistantPayload struct {
	Type string `json:"type"`

	// Text payload.
	Text string `json:"text,omitempty"`

	// Embed payload.
	Provider string `json:"provider,omitempty"`
	URL      string `json:"url,omitempty"`
	VideoID  string `json:"video_id,omitempty"`

	// Invoice payload.
	InvoiceID     int           `json:"invoice_id,omitempty"`
	Total         float64       `json:"total,omitempty"`
	Lines         []InvoiceLine `json:"lines,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// InvoiceLine is one line item of an invoice payload.
type InvoiceLine struct {
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// Text builds a text payload.
func Text(text string) AssistantPayload {
	return AssistantPayload{Type: PayloadText, Text: text}
}

// Embed builds an embed payload for an external media player.
func Embed(provider, videoID, url string) AssistantPayload {
	return AssistantPayload{Type: PayloadEmbed, Provider: provider, VideoID: videoID, URL: url}
}

// Invoice builds an invoice payload.
func Invoice(invoiceID int, total float64, lines []InvoiceLine, transactionID string) AssistantPayload {
	return AssistantPayload{
		Type:          PayloadInvoice,
		InvoiceID:     invoiceID,
		Total:         total,
		Lines:         lines,
		TransactionID: transactionID,
	}
}

// InvocationResponse is the reply to an invoke or resume call.
// Interrupt is nil when the turn ran to completion.
type InvocationResponse struct {
	ThreadID          string             `json:"thread_id"`
	AssistantMessages []AssistantPayload `json:"assistant_messages"`
	Interrupt         *Suspension        `json:"interrupt,omitempty"`
}

// ChatRequest starts or continues a conversation thread.
// ThreadID empty means "mint a new thread".
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   int    `json:"user_id,omitempty"`
}

// ResumeRequest answers a pending suspension on a thread.
type ResumeRequest struct {
	ThreadID string `json:"thread_id"`
	Resume   string `json:"resume"`
}
