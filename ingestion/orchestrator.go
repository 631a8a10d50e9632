package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/notify"
	"github.com/poiesic/docrag/storage"
	"golang.org/x/time/rate"
)

// DefaultEmbedTimeout bounds a single embedding call.
const DefaultEmbedTimeout = 30 * time.Second

// Outcome summarizes a completed embedding pass.
type Outcome struct {
	DocumentId core.ID
	Revision   uint64
	Method     string // MethodChunked or MethodWhole
	TotalUnits int
	Embedded   int // Units embedded by this pass
	Skipped    int // Units already embedded for this revision
	Dimensions int
	Model      string
	Duration   time.Duration
}

// Orchestrator embeds documents and maintains their readiness.
type Orchestrator struct {
	docs       storage.DocumentRepository
	embeddings storage.EmbeddingRepository
	embedder   ai.Embedder
	notifier   notify.Notifier
	limiter    *rate.Limiter
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithNotifier sets the sink for document_embedding notifications.
func WithNotifier(notifier notify.Notifier) OrchestratorOption {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithRateLimit caps embedding calls at perSecond with the given burst.
// Default is unlimited.
func WithRateLimit(perSecond float64, burst int) OrchestratorOption {
	return func(o *Orchestrator) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithEmbedTimeout sets the timeout of each embedding call.
func WithEmbedTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	docs storage.DocumentRepository,
	embeddings storage.EmbeddingRepository,
	embedder ai.Embedder,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	o := &Orchestrator{
		docs:       docs,
		embeddings: embeddings,
		embedder:   embedder,
		notifier:   notify.Nop{},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		timeout:    DefaultEmbedTimeout,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

var _ Processor = (*Orchestrator)(nil)

// ProcessDocument runs one embedding pass over a document. Once started the
// pass ignores cancellation of ctx and always leaves the document in a
// terminal state; each embedding call is still bounded by the embed timeout.
//
// Errors:
//   - core.ErrNotFound if the document doesn't exist
//   - core.ErrValidation if it is deleted or has nothing to embed
//   - core.ErrStateConflict if a pass is already in flight, or the document
//     was edited during this pass (also core.ErrStaleRevision)
//   - core.ErrUpstream if the embedding service failed; the document is
//     left failed and records completed so far are kept
func (o *Orchestrator) ProcessDocument(ctx context.Context, id core.ID, opts ProcessOptions) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	start := o.now()

	doc, err := o.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", id, err)
	}
	if !doc.Active {
		return nil, fmt.Errorf("%w: document %d is deleted", core.ErrValidation, id)
	}

	doc, err = o.docs.TransitionState(ctx, id, doc.Revision, core.StateEmbedding,
		core.StateUnprocessed, core.StateFailed, core.StateReady)
	if err != nil {
		if errors.Is(err, core.ErrStateConflict) && !errors.Is(err, core.ErrStaleRevision) {
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingInFlight, err)
		}
		return nil, err
	}
	logger := o.logger.With("document", id, "revision", doc.Revision)

	units, method := deriveUnits(doc.Content, doc.Kind, opts)
	if len(units) == 0 {
		o.markFailed(ctx, doc)
		return nil, fmt.Errorf("%w: document %d has no content to embed", core.ErrValidation, id)
	}

	current, err := o.currentRecords(ctx, doc)
	if err != nil {
		o.markFailed(ctx, doc)
		return nil, err
	}

	outcome := &Outcome{
		DocumentId: id,
		Revision:   doc.Revision,
		Method:     method,
		TotalUnits: len(units),
		Model:      o.embedder.Model(),
	}

	for _, u := range units {
		if rec, ok := current[u.index]; ok && rec.ChunkHash == u.hash && rec.Model == outcome.Model {
			outcome.Skipped++
			outcome.Dimensions = rec.Dimensions
			continue
		}

		rec, err := o.embedUnit(ctx, doc, u)
		if err != nil {
			if errors.Is(err, core.ErrStaleRevision) {
				logger.Info("document changed during embedding, abandoning pass")
				return nil, err
			}
			logger.Error("embedding pass failed", "unit", u.index, "err", err)
			o.markFailed(ctx, doc)
			return nil, err
		}
		outcome.Embedded++
		outcome.Dimensions = rec.Dimensions
	}

	pruned, err := o.embeddings.PruneEmbeddings(ctx, id, doc.Revision, len(units))
	if err != nil {
		o.markFailed(ctx, doc)
		return nil, fmt.Errorf("failed to prune embeddings of document %d: %w", id, err)
	}

	if _, err := o.docs.TransitionState(ctx, id, doc.Revision, core.StateReady, core.StateEmbedding); err != nil {
		return nil, err
	}
	outcome.Duration = o.now().Sub(start)

	logger.Info("document embedded",
		"method", method,
		"units", outcome.TotalUnits,
		"embedded", outcome.Embedded,
		"skipped", outcome.Skipped,
		"pruned", pruned,
		"duration", outcome.Duration)

	notify.Send(ctx, o.notifier, notify.NewEvent(
		notify.DocumentEmbedding,
		id,
		"Document ready",
		fmt.Sprintf("%q is ready for questions", doc.Title),
		map[string]string{
			"chunks_saved":        strconv.Itoa(outcome.Embedded),
			"total_chunks":        strconv.Itoa(outcome.TotalUnits),
			"embedding_dimension": strconv.Itoa(outcome.Dimensions),
			"model":               outcome.Model,
			"processing_time_ms":  strconv.FormatInt(outcome.Duration.Milliseconds(), 10),
			"embedding_method":    method,
		},
	), o.logger)

	return outcome, nil
}

// embedUnit embeds one unit under the call timeout and stores the record.
func (o *Orchestrator) embedUnit(ctx context.Context, doc *core.Document, u unit) (*core.EmbeddingRecord, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, ai.EmbeddingError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	started := o.now()
	vector, err := o.embedder.EmbedText(callCtx, u.text)
	cancel()
	if err != nil {
		if !errors.Is(err, core.ErrUpstream) {
			err = ai.EmbeddingError(err)
		}
		return nil, err
	}
	if len(vector) == 0 {
		return nil, ai.EmbeddingError(ai.ErrEmptyEmbedding)
	}

	rec := &core.EmbeddingRecord{
		DocumentId: doc.Id,
		ChunkIndex: u.index,
		Whole:      u.whole,
		Vector:     core.NormalizeVector(vector),
		Model:      o.embedder.Model(),
		Latency:    o.now().Sub(started),
		Revision:   doc.Revision,
		ChunkHash:  u.hash,
	}
	if !u.whole {
		rec.ChunkText = u.text
	}
	if err := o.embeddings.PutEmbedding(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store embedding %d of document %d: %w", u.index, doc.Id, err)
	}
	return rec, nil
}

// currentRecords indexes the stored records of the document's revision.
func (o *Orchestrator) currentRecords(ctx context.Context, doc *core.Document) (map[int]*core.EmbeddingRecord, error) {
	records, err := o.embeddings.GetEmbeddings(ctx, doc.Id)
	if err != nil {
		return nil, err
	}
	current := make(map[int]*core.EmbeddingRecord, len(records))
	for _, rec := range records {
		if rec.Revision == doc.Revision {
			current[rec.ChunkIndex] = rec
		}
	}
	return current, nil
}

// markFailed releases a claimed document into the failed state. It runs even
// when ctx is done so a cancelled pass does not leave the document claimed.
func (o *Orchestrator) markFailed(ctx context.Context, doc *core.Document) {
	_, err := o.docs.TransitionState(context.WithoutCancel(ctx), doc.Id, doc.Revision, core.StateFailed, core.StateEmbedding)
	if err != nil && !errors.Is(err, core.ErrStateConflict) {
		o.logger.Error("failed to mark document failed", "document", doc.Id, "err", err)
	}
}

// GetDocumentEmbeddings returns the records of the document's current
// revision in chunk-index order.
func (o *Orchestrator) GetDocumentEmbeddings(ctx context.Context, id core.ID) ([]*core.EmbeddingRecord, error) {
	doc, err := o.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", id, err)
	}
	records, err := o.embeddings.GetEmbeddings(ctx, id)
	if err != nil {
		return nil, err
	}
	current := records[:0]
	for _, rec := range records {
		if rec.Revision == doc.Revision {
			current = append(current, rec)
		}
	}
	return current, nil
}

// RecoverInterrupted moves documents stuck in the embedding state for longer
// than olderThan to failed, so they can be processed again. Returns the
// number of documents recovered.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := o.docs.FindDocumentsByState(ctx, core.StateEmbedding)
	if err != nil {
		return 0, err
	}

	cutoff := o.now().Add(-olderThan)
	recovered := 0
	for _, doc := range stuck {
		if doc.StateChangedAt.After(cutoff) {
			continue
		}
		_, err := o.docs.TransitionState(ctx, doc.Id, doc.Revision, core.StateFailed, core.StateEmbedding)
		if err != nil {
			if errors.Is(err, core.ErrStateConflict) {
				continue
			}
			return recovered, err
		}
		o.logger.Warn("recovered interrupted embedding pass", "document", doc.Id, "since", doc.StateChangedAt)
		recovered++
	}
	return recovered, nil
}
