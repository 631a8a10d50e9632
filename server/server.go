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

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/documents"
	"github.com/poiesic/docrag/ingestion"
)

// DefaultShutdownTimeout bounds the graceful shutdown of Run.
const DefaultShutdownTimeout = 10 * time.Second

// Embedder runs or reads embedding passes. Satisfied by *ingestion.Orchestrator.
type Embedder interface {
	ProcessDocument(ctx context.Context, id core.ID, opts ingestion.ProcessOptions) (*ingestion.Outcome, error)
	GetDocumentEmbeddings(ctx context.Context, id core.ID) ([]*core.EmbeddingRecord, error)
}

// Config holds the services behind the API.
type Config struct {
	Documents     *documents.Store
	Conversations *conversation.Manager
	Chat          *conversation.Chat

	// Scheduler queues embedding passes for POST /api/documents/:id/embed.
	// When nil, embedding is only available with ?wait=true.
	Scheduler documents.Scheduler

	// Embedder serves synchronous passes and embedding listings. Optional.
	Embedder       Embedder
	ProcessOptions ingestion.ProcessOptions

	Logger *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	docs      *documents.Store
	convs     *conversation.Manager
	chat      *conversation.Chat
	scheduler documents.Scheduler
	embedder  Embedder
	options   ingestion.ProcessOptions
	engine    *gin.Engine
	logger    *slog.Logger
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if cfg.Conversations == nil {
		return nil, ErrManagerRequired
	}
	if cfg.Chat == nil {
		return nil, ErrChatRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	options := cfg.ProcessOptions
	if options.MaxChunkSize == 0 {
		options = ingestion.DefaultProcessOptions()
	}

	s := &Server{
		docs:      cfg.Documents,
		convs:     cfg.Conversations,
		chat:      cfg.Chat,
		scheduler: cfg.Scheduler,
		embedder:  cfg.Embedder,
		options:   options,
		logger:    logger.With("component", "server"),
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestID(), s.accessLog())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")

	docs := api.Group("/documents")
	docs.POST("", s.createDocument)
	docs.GET("", s.listDocuments)
	docs.GET("/search", s.searchDocuments)
	docs.GET("/stats", s.documentStats)
	docs.GET("/:id", s.getDocument)
	docs.PATCH("/:id", s.updateDocument)
	docs.DELETE("/:id", s.deleteDocument)
	docs.POST("/:id/embed", s.embedDocument)
	docs.GET("/:id/embeddings", s.documentEmbeddings)

	convs := api.Group("/conversations")
	convs.POST("", s.createConversation)
	convs.GET("/session/:session", s.conversationBySession)
	convs.GET("/:id", s.getConversation)
	convs.DELETE("/:id", s.deactivateConversation)
	convs.GET("/:id/messages", s.listMessages)
	convs.POST("/:id/chat", s.ask)

	api.POST("/rag/document-chat", s.documentChat)
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
