package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/retrieval"
)

const (
	// DefaultGenerationTimeout bounds one generation call.
	DefaultGenerationTimeout = 60 * time.Second
	// DefaultHistoryLimit is the number of prior turns sent with a question.
	DefaultHistoryLimit = 10
)

// Retriever finds evidence for a question. Satisfied by *retrieval.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, documentIDs []core.ID, limit int) (*retrieval.Result, error)
}

// Reply is an answer together with the evidence behind it.
type Reply struct {
	ConversationId core.ID // Zero for stateless questions
	UserTurnId     core.ID
	TurnId         core.ID // The stored assistant turn
	Answer         string
	Sources        []core.Source
	Tier           retrieval.Tier
	Title          string
	ModelInfo      map[string]any
	Usage          ai.Usage
	TokenCount     int
	Latency        time.Duration
}

// Chat answers questions within conversations.
type Chat struct {
	manager       *Manager
	retriever     Retriever
	generator     ai.Generator
	tokens        ai.TokenCounter
	titler        *Titler
	maxLength     int
	temperature   float64
	timeout       time.Duration
	historyLimit  int
	evidenceLimit int
	titles        bool
	now           func() time.Time
	logger        *slog.Logger
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithGenerationDefaults sets the max_length and temperature sent with every question.
func WithGenerationDefaults(maxLength int, temperature float64) ChatOption {
	return func(c *Chat) {
		if maxLength > 0 {
			c.maxLength = maxLength
		}
		if temperature >= 0 {
			c.temperature = temperature
		}
	}
}

// WithGenerationTimeout sets the timeout of each generation call.
func WithGenerationTimeout(timeout time.Duration) ChatOption {
	return func(c *Chat) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHistoryLimit sets how many prior turns accompany a question.
// Zero sends the whole conversation.
func WithHistoryLimit(limit int) ChatOption {
	return func(c *Chat) {
		if limit >= 0 {
			c.historyLimit = limit
		}
	}
}

// WithEvidenceLimit sets the number of evidence items retrieved per question.
func WithEvidenceLimit(limit int) ChatOption {
	return func(c *Chat) {
		if limit > 0 {
			c.evidenceLimit = limit
		}
	}
}

// WithTokenCounter sets the counter of stored turn token counts.
func WithTokenCounter(tokens ai.TokenCounter) ChatOption {
	return func(c *Chat) {
		if tokens != nil {
			c.tokens = tokens
		}
	}
}

// WithTitles enables or disables naming untitled conversations. Enabled by default.
func WithTitles(enabled bool) ChatOption {
	return func(c *Chat) {
		c.titles = enabled
	}
}

// WithChatLogger sets a custom logger.
func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(c *Chat) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChat creates a chat over manager's conversations.
func NewChat(manager *Manager, retriever Retriever, generator ai.Generator, opts ...ChatOption) (*Chat, error) {
	if manager == nil {
		return nil, ErrManagerRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	c := &Chat{
		manager:       manager,
		retriever:     retriever,
		generator:     generator,
		tokens:        ai.NewTokenCounter(ai.DefaultEncoding),
		maxLength:     ai.DefaultMaxLength,
		temperature:   ai.DefaultTemperature,
		timeout:       DefaultGenerationTimeout,
		historyLimit:  DefaultHistoryLimit,
		evidenceLimit: retrieval.DefaultLimit,
		titles:        true,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat")
	c.titler = NewTitler(generator, c.timeout, c.logger)
	return c, nil
}

// Ask answers message within a conversation.
//
// The question is stored before anything else, so it is kept even when the
// answer fails. A conversation without documents fails with core.ErrValidation
// rather than answering without evidence.
func (c *Chat) Ask(ctx context.Context, conversationID core.ID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: %w: message cannot be empty", core.ErrValidation, core.ErrEmptyContent)
	}

	conv, err := c.manager.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Active {
		return nil, fmt.Errorf("conversation %d: %w", conv.Id, ErrInactive)
	}

	prior, err := c.manager.ListMessages(ctx, conv.Id, c.historyLimit)
	if err != nil {
		return nil, err
	}

	userTurn, err := c.manager.AddTurn(ctx, NewTurn{
		ConversationID: conv.Id,
		Role:           core.RoleUser,
		Content:        message,
		TokenCount:     c.tokens.CountTokens(message),
	})
	if err != nil {
		return nil, err
	}

	reply, err := c.answer(ctx, message, conv.DocumentIds, ai.HistoryFromTurns(prior))
	if err != nil {
		return nil, err
	}
	reply.ConversationId = conv.Id
	reply.UserTurnId = userTurn

	reply.TurnId, err = c.manager.AddTurn(ctx, NewTurn{
		ConversationID: conv.Id,
		Role:           core.RoleAssistant,
		Content:        reply.Answer,
		Sources:        reply.Sources,
		TokenCount:     reply.TokenCount,
		Latency:        reply.Latency,
	})
	if err != nil {
		return nil, err
	}

	reply.Title = conv.Title
	if reply.Title == "" && c.titles {
		reply.Title = c.titler.Title(ctx, message, reply.Answer)
		if err := c.manager.SetTitle(ctx, conv.Id, reply.Title); err != nil {
			c.logger.Warn("failed to store conversation title", "conversationID", conv.Id, "err", err)
		}
	}

	c.logger.Info("answered question",
		"conversationID", conv.Id,
		"tier", reply.Tier,
		"sources", len(reply.Sources),
		"latency", reply.Latency)
	return reply, nil
}

// AskDocuments answers message over documentIDs without storing anything.
func (c *Chat) AskDocuments(ctx context.Context, message string, documentIDs []core.ID) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: %w: message cannot be empty", core.ErrValidation, core.ErrEmptyContent)
	}
	return c.answer(ctx, message, documentIDs, nil)
}

// answer retrieves evidence and generates the reply.
func (c *Chat) answer(ctx context.Context, message string, documentIDs []core.ID, history []ai.HistoryMessage) (*Reply, error) {
	started := c.now()

	evidence, err := c.retriever.Retrieve(ctx, message, documentIDs, c.evidenceLimit)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.generator.Generate(callCtx, &ai.GenerationRequest{
		Message:     message,
		Context:     evidence.Context,
		History:     history,
		MaxLength:   c.maxLength,
		Temperature: c.temperature,
	})
	if err != nil {
		if !errors.Is(err, core.ErrUpstream) {
			err = ai.GenerationError(err)
		}
		return nil, err
	}
	answer := strings.TrimSpace(resp.Response)
	if answer == "" {
		return nil, ai.GenerationError(ai.ErrEmptyResponse)
	}

	return &Reply{
		Answer:     answer,
		Sources:    evidence.Evidence,
		Tier:       evidence.Tier,
		ModelInfo:  resp.ModelInfo,
		Usage:      resp.Usage,
		TokenCount: c.tokens.CountTokens(answer),
		Latency:    c.now().Sub(started),
	}, nil
}
