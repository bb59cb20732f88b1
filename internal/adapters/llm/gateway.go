// Package llm provides the inference collaborators: a queued HTTP gateway,
// an in-process Vertex AI backend and a deterministic mock.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// GatewayClient talks to the queued inference service: a submission returns
// a request id immediately and the result is fetched by polling.
type GatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type pollResponse struct {
	Status             string         `json:"status"`
	Message            string         `json:"message"`
	StructuredOutput   map[string]any `json:"structured_output"`
	ResponseFormatType string         `json:"response_format_type"`
	Model              string         `json:"model"`
	Usage              domain.Usage   `json:"usage"`
}

func (c *GatewayClient) Submit(ctx context.Context, req domain.InferenceRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submitting inference request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("inference submit returned %d: %s", res.StatusCode, snippet)
	}

	var out submitResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("inference submit returned no request id")
	}
	return out.RequestID, nil
}

func (c *GatewayClient) Poll(ctx context.Context, requestID string) (*domain.InferenceResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/requests/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("building poll request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("polling request %s: %w", requestID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("inference poll returned %d: %s", res.StatusCode, snippet)
	}

	var out pollResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}

	return &domain.InferenceResult{
		Status:         domain.InferenceStatus(out.Status),
		Message:        out.Message,
		Output:         out.StructuredOutput,
		ResponseFormat: out.ResponseFormatType,
		Model:          out.Model,
		Usage:          out.Usage,
	}, nil
}
