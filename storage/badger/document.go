package badger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	return newDocumentRepository(backend)
}

func newDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// AddDocument stores a new document and its date index entry.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		doc.Id = core.ID(id)

		now := time.Now().UTC()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		doc.StateChangedAt = now

		if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Set(makeDocumentDateKey(doc.CreatedAt, doc.Id), storage.MarshalID(doc.Id))
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument applies fn to the stored document inside one transaction.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, id core.ID, fn func(doc *core.Document) error) (*core.Document, error) {
	var result *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		createdAt := doc.CreatedAt
		if err := fn(doc); err != nil {
			return err
		}
		// Identity and the date index are fixed at creation
		doc.Id = id
		doc.CreatedAt = createdAt
		doc.UpdatedAt = time.Now().UTC()

		result = doc
		return tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
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

// GetDocuments retrieves multiple documents by their IDs.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc != nil {
				result = append(result, doc)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments walks the date index newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, query storage.ListQuery) ([]*core.Document, string, error) {
	prefix := []byte(documentDatePrefix)
	start := seekLast(prefix)
	if query.Cursor != "" {
		suffix, err := hex.DecodeString(query.Cursor)
		if err != nil || len(suffix) != dateIndexSuffixBytes {
			return nil, "", storage.ErrInvalidCursor
		}
		start = append(slices.Clone(prefix), suffix...)
	}

	var (
		results []*core.Document
		next    string
		lastKey []byte
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iter.Item().Key()
			// The cursor key itself was the last entry of the previous page
			if query.Cursor != "" && bytes.Equal(key, start) {
				continue
			}

			var docID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				docID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			doc, err := readDocument(tx, docID)
			if err != nil {
				return err
			}
			if doc == nil || (query.ActiveOnly && !doc.Active) {
				continue
			}

			// A qualifying entry beyond the page proves there is a next page
			if query.Limit > 0 && len(results) == query.Limit {
				next = hex.EncodeToString(lastKey[len(prefix):])
				break
			}
			results = append(results, doc)
			lastKey = iter.Item().KeyCopy(nil)
		}
		return nil
	}, false)
	if err != nil {
		return nil, "", err
	}
	return results, next, nil
}

// SearchDocuments scores every active document by term overlap.
// Title matches weigh double.
func (r *DocumentRepository) SearchDocuments(ctx context.Context, terms []string, limit int) ([]*core.DocumentHit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []*core.DocumentHit
	err := r.scanDocuments(ctx, func(doc *core.Document) {
		if !doc.Active {
			return
		}
		body := doc.Content + " " + doc.Summary + " " + strings.Join(doc.Tags, " ")
		score := (2*core.TermOverlap(doc.Title, terms) + core.TermOverlap(body, terms)) / 3
		if score > 0 {
			hits = append(hits, &core.DocumentHit{Document: doc, Score: score})
		}
	})
	if err != nil {
		return nil, err
	}

	// Highest score first, newest first among equals
	slices.SortStableFunc(hits, func(a, b *core.DocumentHit) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return b.Document.CreatedAt.Compare(a.Document.CreatedAt)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// TransitionState is the compare-and-set used to claim and release embedding runs.
func (r *DocumentRepository) TransitionState(ctx context.Context, id core.ID, revision uint64, to core.EmbeddingState, from ...core.EmbeddingState) (*core.Document, error) {
	var result *core.Document
	// No conflict retries here: losing a race is a state conflict
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Revision != revision {
			return storage.ErrStaleRevision
		}
		if !slices.Contains(from, doc.State) {
			return fmt.Errorf("%w: document %d is %s", storage.ErrStateConflict, id, doc.State)
		}

		now := time.Now().UTC()
		doc.State = to
		doc.StateChangedAt = now
		doc.UpdatedAt = now
		if err := tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		result = doc
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: concurrent update of document %d", storage.ErrStateConflict, id)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindDocumentsByState returns active documents in the given state, oldest first.
func (r *DocumentRepository) FindDocumentsByState(ctx context.Context, state core.EmbeddingState) ([]*core.Document, error) {
	var results []*core.Document
	err := r.scanDocuments(ctx, func(doc *core.Document) {
		if doc.Active && doc.State == state {
			results = append(results, doc)
		}
	})
	return results, err
}

// scanDocuments calls fn for every stored document in ID order.
func (r *DocumentRepository) scanDocuments(ctx context.Context, fn func(doc *core.Document)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			fn(doc)
		}
		return nil
	}, false)
}

// readDocument reads a document from the transaction.
func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	return readValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
}
