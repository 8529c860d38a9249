package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Each call to Chat returns the next entry from Responses; once they are
// consumed the last entry repeats. If Err is set it is returned instead.
// All calls are recorded in Calls. Safe for concurrent use.
//
// Example:
//
//	mock := &MockChatModel{Responses: []string{"lyrics_search", "normal"}}
//	reply, _ := mock.Chat(ctx, msgs) // "lyrics_search"
type MockChatModel struct {
	// Responses is the sequence of replies to return, in order.
	Responses []string

	// Err, if set, is returned by Chat instead of a response.
	Err error

	// Calls records every Chat invocation.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
}

// Chat implements the ChatModel interface.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns how many times Chat has been invoked.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
