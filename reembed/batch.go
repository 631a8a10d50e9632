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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
)

// Report summarizes a reembedding run.
type Report struct {
	Total     int
	Embedded  int // Documents that received new vectors
	Unchanged int // Documents whose vectors were already current
	Skipped   int // Documents with a pass in flight or edited mid-run
	Failed    int
	Errors    map[core.ID]error // Final error of each failed document
	Duration  time.Duration
}

// BatchProcessor runs embedding passes over batches of documents.
type BatchProcessor struct {
	processor      ingestion.Processor
	options        ingestion.ProcessOptions
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxAttempts: maximum number of attempts per document for upstream failures
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(processor ingestion.Processor, options ingestion.ProcessOptions, maxAttempts int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		processor:      processor,
		options:        options,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "reembed"),
	}
}

// Process embeds each document of the batch and records the result in report.
// A document that keeps failing is recorded and the batch moves on; only
// cancellation of ctx stops it early.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document, report *Report) error {
	for _, doc := range docs {
		var outcome *ingestion.Outcome
		err := ingestion.RetryWithBackoff(ctx, func() error {
			var err error
			outcome, err = bp.processor.ProcessDocument(ctx, doc.Id, bp.options)
			return err
		}, bp.maxAttempts, bp.retryBaseDelay)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		switch {
		case err == nil && outcome.Embedded > 0:
			report.Embedded++
		case err == nil:
			report.Unchanged++
		case errors.Is(err, core.ErrStateConflict), errors.Is(err, core.ErrNotFound):
			bp.logger.Debug("document skipped", "documentID", doc.Id, "err", err)
			report.Skipped++
		case errors.Is(err, ingestion.ErrInvalidMaxAttempts):
			return err
		default:
			bp.logger.Warn("document failed", "documentID", doc.Id, "err", err)
			if report.Errors == nil {
				report.Errors = make(map[core.ID]error)
			}
			report.Errors[doc.Id] = fmt.Errorf("failed to embed document %d: %w", doc.Id, err)
			report.Failed++
		}
	}
	return nil
}
