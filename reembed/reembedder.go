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
	"fmt"
	"io"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents to fetch in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxAttempts is the maximum number of attempts per document
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// PendingOnly restricts the run to documents that are not ready
	PendingOnly bool

	// Options are passed to every embedding pass
	Options ingestion.ProcessOptions
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		MaxAttempts:    ingestion.DefaultMaxAttempts,
		RetryDelay:     ingestion.DefaultRetryDelay,
		Options:        ingestion.DefaultProcessOptions(),
	}
}

// Reembedder re-runs embedding passes over the stored documents.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *DocumentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(docs storage.DocumentRepository, processor ingestion.Processor, config *Config, progress io.Writer) (*Reembedder, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts <= 0 {
		return nil, ingestion.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(processor, config.Options, config.MaxAttempts, config.RetryDelay),
		iterator:  NewDocumentIterator(docs, config.BatchSize, config.PendingOnly),
	}, nil
}

// Run embeds every selected document and returns a summary.
// Documents whose vectors are current for the processor's model finish
// without embedding calls, so a run can be repeated after an interruption.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	report := &Report{Total: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents to embed\n")
		return report, nil
	}

	fmt.Fprintf(r.progress, "Starting embedding of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		failedBefore := report.Failed
		if err := r.processor.Process(ctx, docs, report); err != nil {
			return err
		}
		tracker.Advance(len(docs), report.Failed-failedBefore)
		return nil
	})
	tracker.Finish()
	report.Duration = tracker.Elapsed()
	if err != nil {
		return report, err
	}

	fmt.Fprintf(r.progress, "Embedding complete. %d embedded, %d unchanged, %d skipped, %d failed in %v\n",
		report.Embedded, report.Unchanged, report.Skipped, report.Failed, report.Duration.Round(time.Millisecond))
	return report, nil
}
