package storage

import (
	"context"

	"github.com/poiesic/docrag/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	// It does not close the shared backend.
	Close() error
}

// ListQuery selects a page of documents, newest first.
type ListQuery struct {
	ActiveOnly bool
	Limit      int
	Cursor     string // Opaque; empty for the first page
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	// AddDocument stores a new document.
	// Generates the ID from sequence and sets CreatedAt/UpdatedAt.
	// Returns the document with generated fields populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument atomically reads a document, applies fn and writes the result.
	// Returns ErrNotFound if the document doesn't exist.
	// If fn returns an error nothing is written and the error is returned.
	UpdateDocument(ctx context.Context, id core.ID, fn func(doc *core.Document) error) (*core.Document, error)

	// GetDocument retrieves a single document by ID, active or not.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocuments retrieves multiple documents by their IDs, preserving input order.
	// Returns only the documents that exist (no error for missing documents).
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// ListDocuments returns a page of documents ordered by creation time descending,
	// and the cursor of the next page (empty when there are no more).
	ListDocuments(ctx context.Context, query ListQuery) ([]*core.Document, string, error)

	// SearchDocuments ranks active documents by lexical overlap with terms.
	// Returns up to limit hits with a positive score, highest first.
	SearchDocuments(ctx context.Context, terms []string, limit int) ([]*core.DocumentHit, error)

	// TransitionState moves a document into state `to` if its current state is one
	// of `from` and its revision equals `revision`.
	// Returns ErrStateConflict when the state doesn't match or a concurrent writer wins,
	// and ErrStaleRevision when the revision has moved on.
	TransitionState(ctx context.Context, id core.ID, revision uint64, to core.EmbeddingState, from ...core.EmbeddingState) (*core.Document, error)

	// FindDocumentsByState returns active documents currently in the given state.
	FindDocumentsByState(ctx context.Context, state core.EmbeddingState) ([]*core.Document, error)
}

// EmbeddingRepository provides operations for managing embedding records.
type EmbeddingRepository interface {
	Repository
	// PutEmbedding upserts a record keyed by (DocumentId, ChunkIndex).
	// Returns ErrStaleRevision if the record's revision is not the document's current
	// revision, and ErrDimensionMismatch if the vector size differs from earlier
	// vectors of the same model.
	PutEmbedding(ctx context.Context, record *core.EmbeddingRecord) error

	// GetEmbeddings returns every stored record of a document in chunk-index order,
	// regardless of revision.
	GetEmbeddings(ctx context.Context, documentID core.ID) ([]*core.EmbeddingRecord, error)

	// PruneEmbeddings removes records of a document whose revision differs from
	// revision or whose chunk index is >= keep. Returns the number removed, or
	// ErrStaleRevision if revision is no longer the document's current revision.
	PruneEmbeddings(ctx context.Context, documentID core.ID, revision uint64, keep int) (int, error)

	// FindSimilar scores the records of the scoped documents against vector.
	// scope maps each candidate document to its current revision; records of other
	// revisions are ignored. Returns matches with score >= minSimilarity, up to limit,
	// ordered by score (highest first).
	FindSimilar(ctx context.Context, vector []float32, scope map[core.ID]uint64, minSimilarity float32, limit int) ([]*core.EmbeddingMatch, error)

	// ModelDimensions returns the vector size recorded for a model, or 0 if unknown.
	ModelDimensions(ctx context.Context, model string) (int, error)
}

// ConversationRepository provides operations for managing conversations and turns.
type ConversationRepository interface {
	Repository
	// AddConversation stores a new conversation.
	// Generates the ID from sequence and sets CreatedAt/LastActiveAt.
	AddConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error)

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if the conversation doesn't exist.
	GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error)

	// UpdateConversation atomically reads a conversation, applies fn and writes the result.
	// The document set is not writable through fn.
	UpdateConversation(ctx context.Context, id core.ID, fn func(conv *core.Conversation) error) (*core.Conversation, error)

	// FindConversationBySession returns the most recently created active
	// conversation of a session. Returns ErrNotFound if there is none.
	FindConversationBySession(ctx context.Context, sessionID string) (*core.Conversation, error)

	// AddTurn appends a turn to its conversation and touches LastActiveAt in the
	// same transaction. Returns ErrNotFound if the conversation doesn't exist.
	AddTurn(ctx context.Context, turn *core.Turn) (*core.Turn, error)

	// ListTurns returns the turns of a conversation oldest first.
	// With limit > 0 only the most recent limit turns are returned.
	ListTurns(ctx context.Context, conversationID core.ID, limit int) ([]*core.Turn, error)
}
