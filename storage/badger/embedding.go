package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) (storage.EmbeddingRepository, error) {
	return &EmbeddingRepository{backend: backend}, nil
}

// Close is a no-op; the backend is shared.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// PutEmbedding upserts a record after checking it against the document's
// current revision and the model's registered vector size. The record is
// stamped with its creation time.
func (r *EmbeddingRepository) PutEmbedding(ctx context.Context, record *core.EmbeddingRecord) error {
	if record.Model == "" || len(record.Vector) == 0 {
		return fmt.Errorf("%w: embedding record needs a model and a vector", storage.ErrInvalidQuery)
	}
	record.Dimensions = len(record.Vector)
	record.CreatedAt = time.Now().UTC()

	return r.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, record.DocumentId)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Revision != record.Revision {
			return fmt.Errorf("%w: record for revision %d, document %d is at %d",
				storage.ErrStaleRevision, record.Revision, doc.Id, doc.Revision)
		}

		dimKey := makeEmbeddingDimKey(record.Model)
		dims, err := readDimensions(tx, dimKey)
		if err != nil {
			return err
		}
		switch {
		case dims == 0:
			if err := tx.Set(dimKey, storage.MarshalInt(record.Dimensions)); err != nil {
				return err
			}
		case dims != record.Dimensions:
			return fmt.Errorf("%w: model %s produces %d dimensions, got %d",
				storage.ErrDimensionMismatch, record.Model, dims, record.Dimensions)
		}

		return tx.Set(makeEmbeddingKey(record.DocumentId, record.ChunkIndex), storage.MarshalEmbeddingRecord(record))
	})
}

// GetEmbeddings returns all records of a document in chunk-index order.
func (r *EmbeddingRepository) GetEmbeddings(ctx context.Context, documentID core.ID) ([]*core.EmbeddingRecord, error) {
	var results []*core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanEmbeddings(ctx, tx, documentID, func(rec *core.EmbeddingRecord) error {
			results = append(results, rec)
			return nil
		})
	}, false)
	return results, err
}

// PruneEmbeddings deletes records from other revisions and chunk indexes past keep.
// A revision that is no longer the document's current one is rejected as stale.
func (r *EmbeddingRepository) PruneEmbeddings(ctx context.Context, documentID core.ID, revision uint64, keep int) (int, error) {
	var removed int
	err := r.backend.Update(func(tx *badger.Txn) error {
		removed = 0
		doc, err := readDocument(tx, documentID)
		if err != nil {
			return err
		}
		if doc != nil && doc.Revision != revision {
			return fmt.Errorf("%w: prune for revision %d, document %d is at %d",
				storage.ErrStaleRevision, revision, documentID, doc.Revision)
		}

		var stale [][]byte
		err = scanEmbeddings(ctx, tx, documentID, func(rec *core.EmbeddingRecord) error {
			if rec.Revision != revision || rec.ChunkIndex >= keep {
				stale = append(stale, makeEmbeddingKey(rec.DocumentId, rec.ChunkIndex))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// FindSimilar scores the current-revision records of the scoped documents.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, vector []float32, scope map[core.ID]uint64, minSimilarity float32, limit int) ([]*core.EmbeddingMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.EmbeddingMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for docID, revision := range scope {
			err := scanEmbeddings(ctx, tx, docID, func(rec *core.EmbeddingRecord) error {
				if rec.Revision != revision || len(rec.Vector) == 0 {
					return nil
				}
				// Cosine similarity (dot product for normalized vectors)
				similarity := core.DotProduct(vector, rec.Vector)
				if similarity >= minSimilarity {
					results = append(results, &core.EmbeddingMatch{Record: rec, Score: similarity})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending; ties keep a stable document/chunk order
	slices.SortFunc(results, func(a, b *core.EmbeddingMatch) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Record.DocumentId != b.Record.DocumentId:
			if a.Record.DocumentId < b.Record.DocumentId {
				return -1
			}
			return 1
		default:
			return a.Record.ChunkIndex - b.Record.ChunkIndex
		}
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ModelDimensions returns the registered vector size of a model.
func (r *EmbeddingRepository) ModelDimensions(ctx context.Context, model string) (int, error) {
	var dims int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		dims, err = readDimensions(tx, makeEmbeddingDimKey(model))
		return err
	}, false)
	return dims, err
}

func scanEmbeddings(ctx context.Context, tx *badger.Txn, documentID core.ID, fn func(rec *core.EmbeddingRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialEmbeddingKey(documentID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec *core.EmbeddingRecord
		err := iter.Item().Value(func(val []byte) error {
			var err error
			rec, err = storage.UnmarshalEmbeddingRecord(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func readDimensions(tx *badger.Txn, key []byte) (int, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var dims int
	err = item.Value(func(val []byte) error {
		var err error
		dims, err = storage.UnmarshalInt(val)
		return err
	})
	return dims, err
}
