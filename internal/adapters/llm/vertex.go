package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// VertexClient runs Vertex AI (Gemini) generation in-process behind the
// submit/poll contract: Submit starts the generation in a goroutine and
// Poll reads its state from a local table. Structured response formats are
// not supported; the model's text lands in Message.
type VertexClient struct {
	client    *genai.Client
	modelName string

	mu       sync.Mutex
	requests map[string]*domain.InferenceResult
}

// NewVertexClient creates an inference client based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, projectID, location, modelName string) (*VertexClient, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("project and location must be set for the vertex backend")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
		requests:  make(map[string]*domain.InferenceResult),
	}, nil
}

func (v *VertexClient) Submit(ctx context.Context, req domain.InferenceRequest) (string, error) {
	id := uuid.NewString()
	v.mu.Lock()
	v.requests[id] = &domain.InferenceResult{Status: domain.StatusPending}
	v.mu.Unlock()

	// Generation outlives the submit call, same as the remote gateway.
	go v.generate(context.WithoutCancel(ctx), id, req)
	return id, nil
}

func (v *VertexClient) Poll(_ context.Context, requestID string) (*domain.InferenceResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	res, ok := v.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("unknown request id %s", requestID)
	}
	copied := *res
	return &copied, nil
}

func (v *VertexClient) generate(ctx context.Context, id string, req domain.InferenceRequest) {
	var system string
	var contents []*genai.Content
	for _, turn := range req.Messages {
		switch turn.Role {
		case domain.RoleSystem:
			system += turn.Content + "\n"
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}

	temp := float32(req.Temperature)
	topP := float32(req.TopP)
	outputTokens := int32(req.MaxTokens)
	if outputTokens == 0 {
		outputTokens = 8192
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: outputTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	model := req.Model
	if model == "" {
		model = v.modelName
	}

	res, err := v.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		v.finish(id, &domain.InferenceResult{
			Status:  domain.StatusError,
			Message: fmt.Sprintf("vertex generate content: %v", err),
		})
		return
	}

	text := res.Text()
	if text == "" {
		v.finish(id, &domain.InferenceResult{
			Status:  domain.StatusError,
			Message: "vertex returned empty text",
		})
		return
	}

	usage := domain.Usage{Model: model}
	if res.UsageMetadata != nil {
		usage.PromptTokens = int(res.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(res.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(res.UsageMetadata.TotalTokenCount)
	}

	v.finish(id, &domain.InferenceResult{
		Status:         domain.StatusCompleted,
		Message:        text,
		ResponseFormat: req.ResponseFormat,
		Model:          model,
		Usage:          usage,
	})
}

func (v *VertexClient) finish(id string, res *domain.InferenceResult) {
	v.mu.Lock()
	v.requests[id] = res
	v.mu.Unlock()
}
