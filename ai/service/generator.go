package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/docrag/ai"
)

var _ ai.Generator = (*Generator)(nil)

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message             string         `json:"message"`
	Context             string         `json:"context"`
	ConversationHistory []historyEntry `json:"conversation_history"`
	MaxLength           int            `json:"max_length,omitempty"`
	Temperature         float64        `json:"temperature"`
}

type chatUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type chatResponse struct {
	Response  string         `json:"response"`
	ModelInfo map[string]any `json:"model_info"`
	Usage     chatUsage      `json:"usage"`
}

// Generator calls the generation service's /chat endpoint.
type Generator struct {
	client *http.Client
	url    string
	apiKey string
	logger *slog.Logger
}

// NewGenerator creates a generator for the service at host.
func NewGenerator(client *http.Client, host, apiKey string) *Generator {
	return &Generator{
		client: client,
		url:    host + "/chat",
		apiKey: apiKey,
		logger: slog.Default().With("component", "service-generator"),
	}
}

// Generate sends the question, context and history to /chat.
func (g *Generator) Generate(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
	body := chatRequest{
		Message:             req.Message,
		Context:             req.Context,
		ConversationHistory: make([]historyEntry, 0, len(req.History)),
		MaxLength:           req.MaxLength,
		Temperature:         req.Temperature,
	}
	for _, msg := range req.History {
		body.ConversationHistory = append(body.ConversationHistory, historyEntry{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := postJSON[chatResponse](ctx, g.client, "generation", g.url, g.apiKey, body).Get()
	if err != nil {
		g.logger.Error("chat request failed", "err", err)
		return nil, err
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return nil, ai.GenerationError(ai.ErrEmptyResponse)
	}

	return &ai.GenerationResponse{
		Response:  text,
		ModelInfo: resp.ModelInfo,
		Usage: ai.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
