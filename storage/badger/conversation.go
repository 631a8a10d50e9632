package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend *Backend
	convSeq *badger.Sequence
	turnSeq *badger.Sequence
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (storage.ConversationRepository, error) {
	return newConversationRepository(backend)
}

func newConversationRepository(backend *Backend) (*ConversationRepository, error) {
	convSeq, err := backend.GetSequence(conversationIDSeq)
	if err != nil {
		return nil, err
	}
	turnSeq, err := backend.GetSequence(turnIDSeq)
	if err != nil {
		convSeq.Release()
		return nil, err
	}

	return &ConversationRepository{
		backend: backend,
		convSeq: convSeq,
		turnSeq: turnSeq,
	}, nil
}

// Close releases the ID sequences.
func (r *ConversationRepository) Close() error {
	convErr := r.convSeq.Release()
	if err := r.turnSeq.Release(); err != nil {
		return err
	}
	return convErr
}

// AddConversation stores a new conversation and its session index entry.
func (r *ConversationRepository) AddConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		id, err := nextID(r.convSeq)
		if err != nil {
			return err
		}
		conv.Id = core.ID(id)
		conv.DocumentIds = slices.Clone(conv.DocumentIds)
		conv.CreatedAt = time.Now().UTC()
		conv.LastActiveAt = conv.CreatedAt

		if err := tx.Set(makeConversationKey(conv.Id), storage.MarshalConversation(conv)); err != nil {
			return err
		}
		return tx.Set(makeSessionKey(conv.SessionId, conv.CreatedAt, conv.Id), storage.MarshalID(conv.Id))
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (r *ConversationRepository) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	var result *core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readConversation(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpdateConversation applies fn to the stored conversation inside one transaction.
// Identity, session and the document set are restored after fn runs.
func (r *ConversationRepository) UpdateConversation(ctx context.Context, id core.ID, fn func(conv *core.Conversation) error) (*core.Conversation, error) {
	var result *core.Conversation
	err := r.backend.Update(func(tx *badger.Txn) error {
		conv, err := readConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}

		fixed := *conv
		if err := fn(conv); err != nil {
			return err
		}
		conv.Id = fixed.Id
		conv.SessionId = fixed.SessionId
		conv.DocumentIds = fixed.DocumentIds
		conv.CreatedAt = fixed.CreatedAt

		result = conv
		return tx.Set(makeConversationKey(id), storage.MarshalConversation(conv))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindConversationBySession walks the session index newest first.
func (r *ConversationRepository) FindConversationBySession(ctx context.Context, sessionID string) (*core.Conversation, error) {
	var result *core.Conversation
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialSessionKey(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seekLast(prefix)); iter.Valid(); iter.Next() {
			var convID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				convID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			conv, err := readConversation(tx, convID)
			if err != nil {
				return err
			}
			if conv != nil && conv.Active {
				result = conv
				return nil
			}
		}
		return storage.ErrNotFound
	}, false)
	return result, err
}

// AddTurn stores a turn and touches the conversation's LastActiveAt.
func (r *ConversationRepository) AddTurn(ctx context.Context, turn *core.Turn) (*core.Turn, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		conv, err := readConversation(tx, turn.ConversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}

		id, err := nextID(r.turnSeq)
		if err != nil {
			return err
		}
		turn.Id = core.ID(id)
		turn.CreatedAt = time.Now().UTC()
		// Sources are a snapshot owned by the turn
		turn.Sources = slices.Clone(turn.Sources)

		if err := tx.Set(makeTurnKey(turn.ConversationId, turn.Id), storage.MarshalTurn(turn)); err != nil {
			return err
		}

		conv.LastActiveAt = turn.CreatedAt
		return tx.Set(makeConversationKey(conv.Id), storage.MarshalConversation(conv))
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// ListTurns returns a conversation's turns oldest first.
func (r *ConversationRepository) ListTurns(ctx context.Context, conversationID core.ID, limit int) ([]*core.Turn, error) {
	var results []*core.Turn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialTurnKey(conversationID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Walk newest first so a limit keeps the most recent turns
		for iter.Seek(seekLast(prefix)); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) == limit {
				break
			}
			var turn *core.Turn
			err := iter.Item().Value(func(val []byte) error {
				var err error
				turn, err = storage.UnmarshalTurn(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, turn)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	slices.Reverse(results)
	return results, nil
}

// readConversation reads a conversation from the transaction.
func readConversation(tx *badger.Txn, id core.ID) (*core.Conversation, error) {
	return readValue(tx, makeConversationKey(id), storage.UnmarshalConversation)
}
