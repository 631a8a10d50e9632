package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/samber/mo"
)

// Tier identifies the strategy that produced a result.
type Tier string

const (
	TierVector       Tier = "vector"
	TierPattern      Tier = "pattern"
	TierFullDocument Tier = "full_document"
)

const (
	// DefaultLimit is the number of evidence items returned when no limit is given.
	DefaultLimit = 5
	// DefaultMinSimilarity is the lowest similarity a vector match may have.
	DefaultMinSimilarity float32 = 0.3
	// DefaultSnippetLength is the length of full-document and pattern snippets.
	DefaultSnippetLength = 200
	// DefaultLookahead bounds how far a referenced section may extend.
	DefaultLookahead = 1000
	// DefaultEmbedTimeout bounds the query embedding call.
	DefaultEmbedTimeout = 30 * time.Second
)

// Fixed confidence of the non-vector tiers.
const (
	ScorePattern      float32 = 0.9
	ScoreFullDocument float32 = 0.7
	ScoreDegraded     float32 = 0.5 // Full document after an embedding failure
)

// Result is the evidence found for a query and the context assembled from it.
type Result struct {
	Evidence []core.Source
	Context  string
	Tier     Tier
}

// hit is one evidence item together with the text that goes into the context.
type hit struct {
	source  core.Source
	section string
	doc     *core.Document
}

// Retriever implements tiered retrieval over a set of documents.
type Retriever struct {
	docs          storage.DocumentRepository
	embeddings    storage.EmbeddingRepository
	embedder      ai.Embedder
	minSimilarity float32
	snippetLength int
	lookahead     int
	timeout       time.Duration
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithMinSimilarity sets the vector similarity threshold, in [0, 1].
func WithMinSimilarity(threshold float32) Option {
	return func(r *Retriever) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: similarity threshold %v out of range", core.ErrValidation, threshold)
		}
		r.minSimilarity = threshold
		return nil
	}
}

// WithSnippetLength sets the snippet length of the pattern and full-document tiers.
func WithSnippetLength(n int) Option {
	return func(r *Retriever) error {
		if n <= 0 {
			return fmt.Errorf("%w: snippet length must be positive", core.ErrValidation)
		}
		r.snippetLength = n
		return nil
	}
}

// WithLookahead sets how many characters a referenced section may span.
func WithLookahead(n int) Option {
	return func(r *Retriever) error {
		if n <= 0 {
			return fmt.Errorf("%w: lookahead must be positive", core.ErrValidation)
		}
		r.lookahead = n
		return nil
	}
}

// WithEmbedTimeout sets the timeout of the query embedding call.
func WithEmbedTimeout(timeout time.Duration) Option {
	return func(r *Retriever) error {
		if timeout > 0 {
			r.timeout = timeout
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(
	docs storage.DocumentRepository,
	embeddings storage.EmbeddingRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Retriever, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		docs:          docs,
		embeddings:    embeddings,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		snippetLength: DefaultSnippetLength,
		lookahead:     DefaultLookahead,
		timeout:       DefaultEmbedTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Retrieve returns up to limit evidence items for query across documentIDs.
// See RetrieveWithMonitor.
func (r *Retriever) Retrieve(ctx context.Context, query string, documentIDs []core.ID, limit int) (*Result, error) {
	return r.RetrieveWithMonitor(ctx, query, documentIDs, limit, nil)
}

// RetrieveWithMonitor returns up to limit evidence items for query across
// documentIDs, reporting each step to monitor.
//
// Unknown and deleted documents are skipped. A blank query, no document ids,
// or no usable document is a core.ErrValidation. Embedding failures are
// never returned; retrieval falls through to the next tier instead.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, documentIDs []core.ID, limit int, monitor Monitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", core.ErrValidation)
	}
	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrNoDocuments)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	docs, err := r.usableDocuments(ctx, documentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %w: none of the %d requested documents is available",
			core.ErrValidation, core.ErrNoDocuments, len(documentIDs))
	}
	monitor.Start(query, docs)

	fullScore := ScoreFullDocument
	tiers := []struct {
		tier Tier
		run  func() mo.Result[[]hit]
	}{
		{TierVector, func() mo.Result[[]hit] { return r.vectorTier(ctx, query, docs, limit) }},
		{TierPattern, func() mo.Result[[]hit] { return r.patternTier(query, docs) }},
		{TierFullDocument, func() mo.Result[[]hit] { return r.fullDocumentTier(query, docs, fullScore) }},
	}

	for _, t := range tiers {
		hits, err := t.run().Get()
		switch {
		case errors.Is(err, errNotApplicable), errors.Is(err, errNoEvidence):
			monitor.TierSkipped(t.tier, err.Error())
			continue
		case err != nil:
			r.logger.Warn("retrieval tier failed", "tier", t.tier, "err", err)
			monitor.TierFailed(t.tier, err)
			if errors.Is(err, core.ErrUpstream) {
				fullScore = ScoreDegraded
			}
			continue
		}

		if len(hits) > limit {
			hits = hits[:limit]
		}
		result := r.assemble(t.tier, hits)
		monitor.TierHit(t.tier, result.Evidence)
		monitor.Finish(result)
		r.logger.Debug("retrieved evidence", "tier", t.tier, "evidence", len(result.Evidence), "documents", len(docs))
		return result, nil
	}

	return nil, fmt.Errorf("%w: %w: no requested document has content", core.ErrValidation, core.ErrNoDocuments)
}

// usableDocuments loads the active documents among ids, in request order.
func (r *Retriever) usableDocuments(ctx context.Context, ids []core.ID) ([]*core.Document, error) {
	seen := make(map[core.ID]bool, len(ids))
	unique := make([]core.ID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	found, err := r.docs.GetDocuments(ctx, unique...)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	docs := make([]*core.Document, 0, len(found))
	loaded := make(map[core.ID]bool, len(found))
	for _, doc := range found {
		loaded[doc.Id] = true
		if !doc.Active {
			r.logger.Warn("skipping deleted document", "documentID", doc.Id)
			continue
		}
		docs = append(docs, doc)
	}
	for _, id := range unique {
		if !loaded[id] {
			r.logger.Warn("skipping unknown document", "documentID", id)
		}
	}
	return docs, nil
}

// vectorTier ranks the chunks of ready documents by similarity to the query.
func (r *Retriever) vectorTier(ctx context.Context, query string, docs []*core.Document, limit int) mo.Result[[]hit] {
	scope := make(map[core.ID]uint64, len(docs))
	byID := make(map[core.ID]*core.Document, len(docs))
	for _, doc := range docs {
		if doc.Ready() {
			scope[doc.Id] = doc.Revision
			byID[doc.Id] = doc
		}
	}
	if len(scope) == 0 {
		return mo.Err[[]hit](fmt.Errorf("%w: no document has current embeddings", errNotApplicable))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	vector, err := r.embedder.EmbedText(callCtx, query)
	cancel()
	if err != nil {
		if !errors.Is(err, core.ErrUpstream) {
			err = ai.EmbeddingError(err)
		}
		return mo.Err[[]hit](err)
	}
	if len(vector) == 0 {
		return mo.Err[[]hit](ai.EmbeddingError(ai.ErrEmptyEmbedding))
	}

	matches, err := r.embeddings.FindSimilar(ctx, core.NormalizeVector(vector), scope, r.minSimilarity, limit)
	if err != nil {
		return mo.Err[[]hit](fmt.Errorf("failed to search embeddings: %w", err))
	}
	if len(matches) == 0 {
		return mo.Err[[]hit](fmt.Errorf("%w: no chunk reached similarity %v", errNoEvidence, r.minSimilarity))
	}

	hits := make([]hit, 0, len(matches))
	for _, m := range matches {
		doc := byID[m.Record.DocumentId]
		section, snippet := m.Record.ChunkText, m.Record.ChunkText
		if m.Record.Whole || section == "" {
			section = doc.Content
			snippet = core.Truncate(doc.Content, r.snippetLength)
		}
		hits = append(hits, hit{
			source:  source(doc, snippet, m.Score),
			section: section,
			doc:     doc,
		})
	}
	return mo.Ok(hits)
}

// patternTier locates the section a query refers to explicitly.
func (r *Retriever) patternTier(query string, docs []*core.Document) mo.Result[[]hit] {
	ref, ok := parseReference(query)
	if !ok {
		return mo.Err[[]hit](fmt.Errorf("%w: query has no structured reference", errNotApplicable))
	}

	var hits []hit
	for _, doc := range docs {
		span, ok := ref.locate(doc.Content, r.lookahead)
		if !ok {
			continue
		}
		hits = append(hits, hit{
			source:  source(doc, core.Truncate(span, r.snippetLength), ScorePattern),
			section: span,
			doc:     doc,
		})
	}
	if len(hits) == 0 {
		return mo.Err[[]hit](fmt.Errorf("%w: no document contains %s %s", errNoEvidence, ref.label, ref.number))
	}
	return mo.Ok(hits)
}

// fullDocumentTier returns the opening of every document with content,
// most overlapping with the query first.
func (r *Retriever) fullDocumentTier(query string, docs []*core.Document, score float32) mo.Result[[]hit] {
	terms := core.Terms(query)

	type ranked struct {
		hit
		overlap float32
	}
	candidates := make([]ranked, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		candidates = append(candidates, ranked{
			hit: hit{
				source: source(doc, core.Truncate(doc.Content, r.snippetLength), score),
				doc:    doc,
			},
			overlap: core.TermOverlap(doc.Title+" "+doc.Content, terms),
		})
	}
	if len(candidates) == 0 {
		return mo.Err[[]hit](fmt.Errorf("%w: documents are empty", errNoEvidence))
	}

	slices.SortStableFunc(candidates, func(a, b ranked) int {
		return cmp.Compare(b.overlap, a.overlap)
	})

	hits := make([]hit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return mo.Ok(hits)
}

// assemble builds the result of the tier that produced hits.
func (r *Retriever) assemble(tier Tier, hits []hit) *Result {
	evidence := make([]core.Source, len(hits))
	parts := make([]string, len(hits))
	for i, h := range hits {
		evidence[i] = h.source
		switch tier {
		case TierVector:
			parts[i] = fmt.Sprintf("Document: %s\n\nRelevant section:\n%s", h.doc.Title, h.section)
		case TierPattern:
			parts[i] = fmt.Sprintf("Document: %s\n\nRelevant section:\n%s\n\nFull context:\n%s", h.doc.Title, h.section, h.doc.Content)
		default:
			parts[i] = fmt.Sprintf("Document: %s\n\nContent: %s", h.doc.Title, h.doc.Content)
		}
	}
	return &Result{
		Evidence: evidence,
		Context:  strings.Join(parts, "\n\n---\n\n"),
		Tier:     tier,
	}
}

func source(doc *core.Document, snippet string, score float32) core.Source {
	return core.Source{
		DocumentId: doc.Id,
		Title:      doc.Title,
		Snippet:    snippet,
		Score:      score,
	}
}
