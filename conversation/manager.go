package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// NewConversation holds the fields of a conversation to create.
type NewConversation struct {
	DocumentIDs []core.ID // May be empty; questions then fail validation
	SessionID   string
	Model       string
	Title       string // Optional; derived from the first question when empty
}

// NewTurn holds the fields of a turn to append.
type NewTurn struct {
	ConversationID core.ID
	Role           core.Role
	Content        string
	Sources        []core.Source // Assistant turns only
	TokenCount     int
	Latency        time.Duration
}

// Manager manages conversations and their turns.
type Manager struct {
	convs  storage.ConversationRepository
	docs   storage.DocumentRepository
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a conversation manager.
func NewManager(convs storage.ConversationRepository, docs storage.DocumentRepository, opts ...ManagerOption) (*Manager, error) {
	if convs == nil {
		return nil, ErrConversationRepositoryRequired
	}
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	m := &Manager{convs: convs, docs: docs, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "conversations")
	return m, nil
}

// CreateConversation starts a conversation bound to a fixed document set.
// Every document must exist and be active.
func (m *Manager) CreateConversation(ctx context.Context, nc NewConversation) (core.ID, error) {
	conv := &core.Conversation{
		SessionId:   strings.TrimSpace(nc.SessionID),
		DocumentIds: uniqueIDs(nc.DocumentIDs),
		Title:       strings.TrimSpace(nc.Title),
		Model:       strings.TrimSpace(nc.Model),
		Active:      true,
	}
	if err := core.ValidateConversation(conv); err != nil {
		return 0, err
	}

	if len(conv.DocumentIds) > 0 {
		docs, err := m.docs.GetDocuments(ctx, conv.DocumentIds...)
		if err != nil {
			return 0, fmt.Errorf("failed to load documents: %w", err)
		}
		active := make(map[core.ID]bool, len(docs))
		for _, doc := range docs {
			active[doc.Id] = doc.Active
		}
		for _, id := range conv.DocumentIds {
			if !active[id] {
				return 0, fmt.Errorf("%w: %w: document %d is unknown or deleted",
					core.ErrValidation, core.ErrInvalidConversation, id)
			}
		}
	}

	created, err := m.convs.AddConversation(ctx, conv)
	if err != nil {
		return 0, fmt.Errorf("failed to add conversation: %w", err)
	}
	m.logger.Debug("conversation created", "conversationID", created.Id, "session", created.SessionId, "documents", len(created.DocumentIds))
	return created.Id, nil
}

// AddTurn appends a turn to an active conversation.
// Sources must reference documents of the conversation.
func (m *Manager) AddTurn(ctx context.Context, nt NewTurn) (core.ID, error) {
	turn := &core.Turn{
		ConversationId: nt.ConversationID,
		Role:           nt.Role,
		Content:        nt.Content,
		Sources:        nt.Sources,
		TokenCount:     nt.TokenCount,
		Latency:        nt.Latency,
	}
	if err := core.ValidateTurn(turn); err != nil {
		return 0, err
	}
	if turn.TokenCount < 0 || turn.Latency < 0 {
		return 0, fmt.Errorf("%w: %w: token count and latency cannot be negative", core.ErrValidation, core.ErrInvalidTurn)
	}

	conv, err := m.GetConversation(ctx, nt.ConversationID)
	if err != nil {
		return 0, err
	}
	if !conv.Active {
		return 0, fmt.Errorf("conversation %d: %w", conv.Id, ErrInactive)
	}
	for _, src := range turn.Sources {
		if !conv.HasDocument(src.DocumentId) {
			return 0, fmt.Errorf("document %d: %w", src.DocumentId, ErrForeignSource)
		}
	}

	added, err := m.convs.AddTurn(ctx, turn)
	if err != nil {
		return 0, fmt.Errorf("failed to add turn to conversation %d: %w", conv.Id, err)
	}
	return added.Id, nil
}

// GetConversation retrieves a conversation, active or not.
func (m *Manager) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	conv, err := m.convs.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conversation %d: %w", id, err)
	}
	return conv, nil
}

// GetConversationBySession returns the most recent active conversation of a session.
func (m *Manager) GetConversationBySession(ctx context.Context, sessionID string) (*core.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptySession)
	}
	conv, err := m.convs.FindConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}
	return conv, nil
}

// ListMessages returns the turns of a conversation oldest first.
// With limit > 0 only the most recent limit turns are returned.
func (m *Manager) ListMessages(ctx context.Context, id core.ID, limit int) ([]*core.Turn, error) {
	if _, err := m.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	turns, err := m.convs.ListTurns(ctx, id, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list turns of conversation %d: %w", id, err)
	}
	return turns, nil
}

// Deactivate marks a conversation inactive. Deactivating twice is not an error.
func (m *Manager) Deactivate(ctx context.Context, id core.ID) error {
	_, err := m.convs.UpdateConversation(ctx, id, func(conv *core.Conversation) error {
		conv.Active = false
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation %d: %w", id, err)
	}
	return nil
}

// SetTitle replaces the title of a conversation.
func (m *Manager) SetTitle(ctx context.Context, id core.ID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyTitle)
	}
	_, err := m.convs.UpdateConversation(ctx, id, func(conv *core.Conversation) error {
		conv.Title = title
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation %d: %w", id, err)
	}
	return nil
}

func uniqueIDs(ids []core.ID) []core.ID {
	seen := make(map[core.ID]bool, len(ids))
	out := make([]core.ID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
