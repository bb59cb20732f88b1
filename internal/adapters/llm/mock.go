package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// MockClient completes every submission immediately with a canned result
// keyed on the requested response format. Used in tests and local runs.
type MockClient struct {
	mu       sync.Mutex
	requests map[string]*domain.InferenceResult
}

func NewMockClient() *MockClient {
	return &MockClient{requests: make(map[string]*domain.InferenceResult)}
}

func (m *MockClient) Submit(_ context.Context, req domain.InferenceRequest) (string, error) {
	id := uuid.NewString()

	var output map[string]any
	message := ""
	switch req.ResponseFormat {
	case "intimacy":
		output = map[string]any{"intimacy": 1}
	case "text":
		message = "Hey, I was just thinking about you."
	default:
		output = map[string]any{
			"dialogues": []any{
				map[string]any{"action_mood": "smiling", "message": "You came back."},
				map[string]any{"action_mood": "curious", "message": "Tell me everything."},
			},
		}
	}

	m.mu.Lock()
	m.requests[id] = &domain.InferenceResult{
		Status:         domain.StatusCompleted,
		Message:        message,
		Output:         output,
		ResponseFormat: req.ResponseFormat,
		Model:          req.Model,
		Usage:          domain.Usage{Model: req.Model, PromptTokens: 42, CompletionTokens: 17, TotalTokens: 59},
	}
	m.mu.Unlock()
	return id, nil
}

func (m *MockClient) Poll(_ context.Context, requestID string) (*domain.InferenceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("unknown request id %s", requestID)
	}
	copied := *res
	return &copied, nil
}
