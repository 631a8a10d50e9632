package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		model:  config.GenerationModel,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new generator using the provided configuration.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate answers req.Message grounded in req.Context.
func (g *Generator) Generate(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
	content := buildMessages(req)
	g.logger.Debug("generating answer", "query_kind", classifyQuery(req.Message), "history", len(req.History))

	var opts []llms.CallOption
	if req.MaxLength > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxLength))
	}
	opts = append(opts, llms.WithTemperature(req.Temperature))

	response, err := g.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return nil, ai.GenerationError(err)
	}
	if len(response.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return nil, ai.GenerationError(ai.ErrEmptyResponse)
	}

	choice := response.Choices[0]
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return nil, ai.GenerationError(ai.ErrEmptyResponse)
	}

	return &ai.GenerationResponse{
		Response: text,
		ModelInfo: map[string]any{
			"model_name":  g.model,
			"max_length":  req.MaxLength,
			"temperature": req.Temperature,
		},
		Usage: usageFrom(choice.GenerationInfo),
	}, nil
}

// buildMessages lays out the system prompt with context, the prior turns and
// the new question.
func buildMessages(req *ai.GenerationRequest) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(req.History)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, buildSystemPrompt(req.Message, req.Context)))
	for _, msg := range req.History {
		role := llms.ChatMessageTypeHuman
		if msg.Role == core.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))
}

// usageFrom reads token counts from langchaingo generation info when present.
func usageFrom(info map[string]any) ai.Usage {
	var usage ai.Usage
	usage.InputTokens = intValue(info["PromptTokens"])
	usage.OutputTokens = intValue(info["CompletionTokens"])
	usage.TotalTokens = intValue(info["TotalTokens"])
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
