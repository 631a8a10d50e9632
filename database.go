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

package docrag

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/openai"
	"github.com/poiesic/docrag/ai/service"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/documents"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/notify"
	"github.com/poiesic/docrag/reembed"
	"github.com/poiesic/docrag/retrieval"
	"github.com/poiesic/docrag/server"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
)

// Database wires storage, the AI provider and every service over one
// badger directory.
type Database struct {
	repos        *badger.Repositories
	provider     ai.AIProvider
	config       *config.Config
	orchestrator *ingestion.Orchestrator
	pipeline     *ingestion.Pipeline
	store        *documents.Store
	manager      *conversation.Manager
	retriever    *retrieval.Retriever
	chat         *conversation.Chat
	events       *notify.ChannelPublisher
	logger       *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	config   *config.Config
	provider ai.AIProvider
	notifier notify.Notifier
	events   int
	inMemory bool
	logger   *slog.Logger
}

// WithConfig sets the component settings. Default is config.Default().
func WithConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.config = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithNotifier sets the sink of document notifications. Default logs them.
func WithNotifier(notifier notify.Notifier) DatabaseOption {
	return func(o *databaseOptions) {
		o.notifier = notifier
	}
}

// WithEvents also publishes document notifications on Events, buffering up
// to buffer of them. Notifications that find the buffer full are dropped.
func WithEvents(buffer int) DatabaseOption {
	return func(o *databaseOptions) {
		o.events = buffer
	}
}

// WithInMemory keeps all data in memory; the path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the database at filePath and starts the embedding
// workers. Documents left mid-embedding by an earlier process are moved to
// failed so they can be embedded again.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.config == nil {
		options.config = config.Default()
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.notifier == nil {
		options.notifier = notify.NewLogNotifier(options.logger)
	}
	cfg := options.config

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	repos, err := badger.OpenRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = NewProvider(cfg.AI)
		if err != nil {
			repos.Close()
			return nil, err
		}
	}

	db := &Database{
		repos:    repos,
		provider: provider,
		config:   cfg,
		logger:   options.logger,
	}
	notifier := options.notifier
	if options.events > 0 {
		db.events = notify.NewChannelPublisher(options.events)
		notifier = notify.NewMultiNotifier(notifier, db.events)
	}
	if err := db.wire(notifier); err != nil {
		db.Close()
		return nil, err
	}

	recovered, err := db.orchestrator.RecoverInterrupted(context.Background(), 0)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover interrupted embeddings: %w", err)
	}
	if recovered > 0 {
		db.logger.Warn("recovered interrupted embedding passes", "documents", recovered)
	}
	return db, nil
}

// NewProvider builds the AI provider selected by cfg.Backend.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case ai.BackendService:
		return service.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

func (db *Database) wire(notifier notify.Notifier) error {
	cfg, logger := db.config, db.logger
	var err error

	orchOpts := []ingestion.OrchestratorOption{
		ingestion.WithNotifier(notifier),
		ingestion.WithEmbedTimeout(cfg.AI.EmbeddingTimeout),
		ingestion.WithOrchestratorLogger(logger),
	}
	if cfg.Ingestion.RateLimit > 0 {
		orchOpts = append(orchOpts, ingestion.WithRateLimit(cfg.Ingestion.RateLimit, cfg.Ingestion.RateBurst))
	}
	db.orchestrator, err = ingestion.NewOrchestrator(db.repos.Documents, db.repos.Embeddings, db.provider.Embedder(), orchOpts...)
	if err != nil {
		return err
	}

	pipeOpts := []ingestion.Option{
		ingestion.WithQueueSize(cfg.Ingestion.QueueSize),
		ingestion.WithProcessOptions(cfg.Ingestion.ProcessOptions()),
		ingestion.WithRetry(cfg.Ingestion.MaxAttempts, cfg.Ingestion.RetryDelay),
		ingestion.WithLogger(logger),
	}
	if cfg.Ingestion.Workers > 0 {
		pipeOpts = append(pipeOpts, ingestion.WithPoolSize(cfg.Ingestion.Workers))
	}
	db.pipeline, err = ingestion.NewPipeline(db.orchestrator, pipeOpts...)
	if err != nil {
		return err
	}

	db.store, err = documents.NewStore(db.repos.Documents,
		documents.WithScheduler(db.pipeline),
		documents.WithNotifier(notifier),
		documents.WithLogger(logger))
	if err != nil {
		return err
	}

	db.manager, err = conversation.NewManager(db.repos.Conversations, db.repos.Documents,
		conversation.WithManagerLogger(logger))
	if err != nil {
		return err
	}

	db.retriever, err = retrieval.NewRetriever(db.repos.Documents, db.repos.Embeddings, db.provider.Embedder(),
		retrieval.WithMinSimilarity(cfg.Retrieval.MinSimilarity),
		retrieval.WithEmbedTimeout(cfg.AI.EmbeddingTimeout),
		retrieval.WithLogger(logger))
	if err != nil {
		return err
	}

	db.chat, err = conversation.NewChat(db.manager, db.retriever, db.provider.Generator(),
		conversation.WithGenerationDefaults(cfg.AI.MaxLength, cfg.AI.Temperature),
		conversation.WithGenerationTimeout(cfg.AI.GenerationTimeout),
		conversation.WithHistoryLimit(cfg.Chat.HistoryLimit),
		conversation.WithEvidenceLimit(cfg.Retrieval.EvidenceLimit),
		conversation.WithTitles(cfg.Chat.Titles),
		conversation.WithChatLogger(logger))
	return err
}

// Close stops accepting embedding jobs, waits for running ones and closes
// the provider and storage.
func (db *Database) Close() error {
	if db.pipeline != nil {
		db.pipeline.Release()
		db.pipeline.Wait()
	}
	if db.events != nil {
		db.events.Close()
	}

	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		return err
	}
	return nil
}

// WaitForEmbeddings blocks until every queued embedding job has finished.
func (db *Database) WaitForEmbeddings() {
	db.pipeline.Wait()
}

// Events delivers document notifications when the database was opened
// WithEvents. It is nil otherwise, and closed by Close.
func (db *Database) Events() <-chan notify.Event {
	if db.events == nil {
		return nil
	}
	return db.events.Events()
}

func (db *Database) Documents() *documents.Store {
	return db.store
}

func (db *Database) Conversations() *conversation.Manager {
	return db.manager
}

func (db *Database) Chat() *conversation.Chat {
	return db.chat
}

func (db *Database) Retriever() *retrieval.Retriever {
	return db.retriever
}

func (db *Database) Orchestrator() *ingestion.Orchestrator {
	return db.orchestrator
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.repos.Documents
}

// NewReembedder creates a bulk re-embedder over the database's documents.
// A nil cfg uses the configured retry policy and chunking.
func (db *Database) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if cfg == nil {
		cfg = reembed.DefaultConfig()
		cfg.MaxAttempts = db.config.Ingestion.MaxAttempts
		cfg.RetryDelay = db.config.Ingestion.RetryDelay
		cfg.Options = db.config.Ingestion.ProcessOptions()
	}
	return reembed.NewReembedder(db.repos.Documents, db.orchestrator, cfg, progress)
}

// NewServer creates the HTTP API over the database's services.
func (db *Database) NewServer() (*server.Server, error) {
	return server.New(server.Config{
		Documents:      db.store,
		Conversations:  db.manager,
		Chat:           db.chat,
		Scheduler:      db.pipeline,
		Embedder:       db.orchestrator,
		ProcessOptions: db.config.Ingestion.ProcessOptions(),
		Logger:         db.logger,
	})
}
