package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/notify"
	"github.com/poiesic/docrag/storage"
	"github.com/samber/mo"
)

const (
	// DefaultPageSize is the page size of List when none is given.
	DefaultPageSize = 20
	// MaxPageSize caps the page size of List.
	MaxPageSize = 100
	// DefaultSearchLimit is the result limit of Search when none is given.
	DefaultSearchLimit = 10
)

// Scheduler accepts embedding jobs. Enqueue must not block on the job itself.
type Scheduler interface {
	Enqueue(ctx context.Context, id core.ID) error
}

// NewDocument holds the caller-supplied fields of a new document.
type NewDocument struct {
	Title   string
	Content string
	Kind    core.ContentKind // Defaults to text
	Tags    []string
	Summary string
}

// Patch holds the fields of an edit. Absent options are left unchanged.
type Patch struct {
	Title   mo.Option[string]
	Content mo.Option[string]
	Summary mo.Option[string]
	Tags    mo.Option[[]string]
}

// ListOptions selects a page of documents.
type ListOptions struct {
	ActiveOnly bool
	PageSize   int
	Cursor     string
}

// Page is one page of a document listing.
type Page struct {
	Documents  []*core.Document
	NextCursor string // Empty on the last page
}

// Store manages documents.
type Store struct {
	docs      storage.DocumentRepository
	scheduler Scheduler
	notifier  notify.Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithScheduler sets the collaborator that runs embedding jobs.
// Without one, documents stay unprocessed until embedded explicitly.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Store) {
		s.scheduler = scheduler
	}
}

// WithNotifier sets the notification sink. Default discards events.
func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Store) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a document store.
func NewStore(docs storage.DocumentRepository, opts ...Option) (*Store, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	s := &Store{
		docs:     docs,
		notifier: notify.Nop{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "documents")
	return s, nil
}

// Create validates and persists a new document, then schedules its embedding.
func (s *Store) Create(ctx context.Context, nd NewDocument) (core.ID, error) {
	kind := nd.Kind
	if kind == "" {
		kind = core.ContentKindText
	}

	doc := &core.Document{
		Title:       strings.TrimSpace(nd.Title),
		Content:     nd.Content,
		Kind:        kind,
		Size:        core.CharCount(nd.Content),
		WordCount:   core.WordCount(nd.Content),
		Active:      true,
		Tags:        cleanTags(nd.Tags),
		Summary:     strings.TrimSpace(nd.Summary),
		State:       core.StateUnprocessed,
		Revision:    1,
		ContentHash: core.Fingerprint(nd.Content),
	}
	if err := core.ValidateDocument(doc); err != nil {
		return 0, err
	}

	added, err := s.docs.AddDocument(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to add document: %w", err)
	}
	s.logger.Info("document created", "id", added.Id, "kind", added.Kind, "words", added.WordCount)

	notify.Send(ctx, s.notifier, notify.NewEvent(
		notify.DocumentUpload,
		added.Id,
		"Document uploaded",
		fmt.Sprintf("%q has been uploaded and is being processed", added.Title),
		map[string]string{
			"contentType": string(added.Kind),
			"fileSize":    strconv.Itoa(added.Size),
			"wordCount":   strconv.Itoa(added.WordCount),
		},
	), s.logger)

	s.schedule(ctx, added.Id)
	return added.Id, nil
}

// Update applies patch to an active document. A content change bumps the
// revision, clears readiness and schedules a new embedding run.
func (s *Store) Update(ctx context.Context, id core.ID, patch Patch) (*core.Document, error) {
	if title, ok := patch.Title.Get(); ok && strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: %w: %w", core.ErrValidation, core.ErrInvalidDocument, core.ErrEmptyTitle)
	}
	if content, ok := patch.Content.Get(); ok && strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %w: %w", core.ErrValidation, core.ErrInvalidDocument, core.ErrEmptyContent)
	}

	contentChanged := false
	updated, err := s.docs.UpdateDocument(ctx, id, func(doc *core.Document) error {
		if !doc.Active {
			return fmt.Errorf("document %d is deleted: %w", id, storage.ErrNotFound)
		}
		contentChanged = false

		if title, ok := patch.Title.Get(); ok {
			doc.Title = strings.TrimSpace(title)
		}
		if summary, ok := patch.Summary.Get(); ok {
			doc.Summary = strings.TrimSpace(summary)
		}
		if tags, ok := patch.Tags.Get(); ok {
			doc.Tags = cleanTags(tags)
		}
		if content, ok := patch.Content.Get(); ok && content != doc.Content {
			contentChanged = true
			doc.Content = content
			doc.Size = core.CharCount(content)
			doc.WordCount = core.WordCount(content)
			doc.ContentHash = core.Fingerprint(content)
			doc.Revision++
			doc.State = core.StateUnprocessed
			doc.StateChangedAt = s.now().UTC()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update document %d: %w", id, err)
	}

	if contentChanged {
		s.logger.Info("document content changed", "id", id, "revision", updated.Revision)
		s.schedule(ctx, id)
	}
	return updated, nil
}

// SoftDelete marks a document inactive. Deleting a deleted document is a no-op.
func (s *Store) SoftDelete(ctx context.Context, id core.ID) error {
	_, err := s.docs.UpdateDocument(ctx, id, func(doc *core.Document) error {
		doc.Active = false
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	s.logger.Info("document deleted", "id", id)
	return nil
}

// Get returns a document, deleted or not.
func (s *Store) Get(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", id, err)
	}
	return doc, nil
}

// List returns a page of documents, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) (*Page, error) {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)

	docs, next, err := s.docs.ListDocuments(ctx, storage.ListQuery{
		ActiveOnly: opts.ActiveOnly,
		Limit:      size,
		Cursor:     opts.Cursor,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Documents: docs, NextCursor: next}, nil
}

// Search ranks active documents by how many terms of term they contain.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]*core.DocumentHit, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: search term cannot be empty", core.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := core.Terms(term)
	if len(terms) == 0 {
		return []*core.DocumentHit{}, nil
	}
	return s.docs.SearchDocuments(ctx, terms, limit)
}

// Stats summarizes the active documents.
func (s *Store) Stats(ctx context.Context) (*core.DocumentStats, error) {
	docs, _, err := s.docs.ListDocuments(ctx, storage.ListQuery{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	now := s.now()
	stats := &core.DocumentStats{
		ContentKinds: make(map[core.ContentKind]int),
		States:       make(map[core.EmbeddingState]int),
	}
	for _, doc := range docs {
		stats.TotalDocuments++
		stats.TotalWords += doc.WordCount
		stats.TotalSize += doc.Size
		stats.ContentKinds[doc.Kind]++
		stats.States[doc.State]++

		age := now.Sub(doc.CreatedAt)
		if age <= time.Hour {
			stats.UploadsLastHour++
		}
		if age <= 24*time.Hour {
			stats.UploadsLastDay++
		}
	}
	return stats, nil
}

// schedule hands an embedding job to the scheduler. Failures are logged only:
// the document stays unprocessed and can be embedded later.
func (s *Store) schedule(ctx context.Context, id core.ID) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Enqueue(ctx, id); err != nil {
		s.logger.Warn("failed to schedule embedding", "id", id, "err", err)
	}
}

func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
