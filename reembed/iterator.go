// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

const (
	// DefaultBatchSize is the default number of documents to fetch in each batch
	DefaultBatchSize = 50
)

// DocumentIterator iterates over active documents in batches, newest first.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
	pending   bool
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents to fetch in each batch (must be > 0)
// pendingOnly: skip documents whose embeddings are already current
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int, pendingOnly bool) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
		pending:   pendingOnly,
	}
}

// ForEach calls fn for each batch of documents.
// Iteration stops on the first error from fn or when all pages are read.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, next, err := it.repo.ListDocuments(ctx, storage.ListQuery{
			ActiveOnly: true,
			Limit:      it.batchSize,
			Cursor:     cursor,
		})
		if err != nil {
			return err
		}

		batch := page
		if it.pending {
			batch = make([]*core.Document, 0, len(page))
			for _, doc := range page {
				if !doc.Ready() {
					batch = append(batch, doc)
				}
			}
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
}

// Count returns the number of documents ForEach would visit.
func (it *DocumentIterator) Count(ctx context.Context) (int, error) {
	total := 0
	err := it.ForEach(ctx, func(docs []*core.Document) error {
		total += len(docs)
		return nil
	})
	return total, err
}
