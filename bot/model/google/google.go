// Package google implements model.ChatModel using Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/convograph/bot/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// It wraps the official generative-ai-go client. The client holds a gRPC
// connection; call Close when the model is no longer needed.
//
// Example usage:
//
//	m, err := google.NewChatModel(ctx, os.Getenv("GOOGLE_API_KEY"), "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//	reply, err := m.Chat(ctx, msgs)
type ChatModel struct {
	client     geminiClient
	closer     func() error
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// geminiClient defines the API surface the adapter needs.
// This allows for easy mocking in tests.
type geminiClient interface {
	generateContent(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// NewChatModel creates a Gemini ChatModel.
//
// Parameters:
//   - ctx: Context used to establish the client connection.
//   - apiKey: Google API key (get from https://aistudio.google.com/).
//   - modelName: Gemini model to use. Empty string uses DefaultModel.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("Google API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &ChatModel{
		client:     &sdkClient{client: client, modelName: modelName},
		closer:     client.Close,
		modelName:  modelName,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Close releases the underlying client connection.
func (m *ChatModel) Close() error {
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

// Chat implements the model.ChatModel interface.
//
// Gemini's text API takes a single prompt, so the conversation is
// flattened with role prefixes before the call.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	systemPrompt, prompt := flattenConversation(messages)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		text, err := m.client.generateContent(ctx, systemPrompt, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !isTransientError(err) {
			return "", err
		}
		if attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("Google API failed after %d retries: %w", m.maxRetries, lastErr)
}

// flattenConversation splits out the system prompt and renders the rest
// of the conversation as a role-prefixed transcript.
func flattenConversation(messages []model.Message) (string, string) {
	var systemPrompt string
	var sb strings.Builder

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case model.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		default:
			sb.WriteString("User: ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}
	return systemPrompt, sb.String()
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msgLower := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"network",
		"connection",
		"unavailable",
		"resource exhausted",
		"429",
		"503",
		"500",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

// sdkClient wraps the official generative-ai-go client.
type sdkClient struct {
	client    *genai.Client
	modelName string
}

func (c *sdkClient) generateContent(ctx context.Context, systemPrompt, prompt string) (string, error) {
	gm := c.client.GenerativeModel(c.modelName)
	if systemPrompt != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("no response from Gemini API")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("empty content in Gemini response")
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	if text == "" {
		return "", errors.New("no text content in Gemini response")
	}
	return text, nil
}
