package domain

import (
	"context"
	"time"
)

type InferenceStatus string

const (
	StatusPending   InferenceStatus = "pending"
	StatusCompleted InferenceStatus = "completed"
	StatusError     InferenceStatus = "error"
	StatusTimeout   InferenceStatus = "timeout"
)

// InferenceRequest is one chat completion submission. Model may be empty to
// use the collaborator's default.
type InferenceRequest struct {
	Model          string  `json:"model,omitempty"`
	Messages       []Turn  `json:"messages"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TopP           float64 `json:"top_p"`
	ResponseFormat string  `json:"response_format"`
}

// InferenceResult is the polled state of a submitted request. Output holds
// the structured payload once Status is completed.
type InferenceResult struct {
	Status         InferenceStatus
	Message        string
	Output         map[string]any
	ResponseFormat string
	Model          string
	Usage          Usage
}

// Usage counts tokens for one inference call.
type Usage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Add sums two usage records; the model tag of the receiver wins when set.
func (u Usage) Add(o Usage) Usage {
	model := u.Model
	if model == "" {
		model = o.Model
	}
	return Usage{
		Model:            model,
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// AwaitResult polls a request id until it reaches a terminal state or the
// ceiling elapses. It never returns nil: a request that outlives the ceiling
// yields a timeout result, and a poll transport failure yields an error
// result, so callers always have something to degrade on.
func AwaitResult(ctx context.Context, c InferenceClient, requestID string, ceiling, interval time.Duration) *InferenceResult {
	deadline := time.Now().Add(ceiling)
	for {
		res, err := c.Poll(ctx, requestID)
		if err != nil {
			return &InferenceResult{Status: StatusError, Message: err.Error()}
		}
		if res.Status == StatusCompleted || res.Status == StatusError {
			return res
		}
		if time.Now().After(deadline) {
			return &InferenceResult{Status: StatusTimeout, Message: "request did not complete before the ceiling"}
		}
		select {
		case <-ctx.Done():
			return &InferenceResult{Status: StatusTimeout, Message: ctx.Err().Error()}
		case <-time.After(interval):
		}
	}
}
