package conversation

import (
	"errors"
	"fmt"

	"github.com/poiesic/docrag/core"
)

var (
	// ErrConversationRepositoryRequired is returned when a conversation repository is not provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrManagerRequired is returned when a conversation manager is not provided.
	ErrManagerRequired = errors.New("conversation manager required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrInactive indicates a turn for a deactivated conversation.
	ErrInactive = fmt.Errorf("%w: conversation is inactive", core.ErrValidation)

	// ErrForeignSource indicates a source outside the conversation's document set.
	ErrForeignSource = fmt.Errorf("%w: source document is not part of the conversation", core.ErrValidation)
)
