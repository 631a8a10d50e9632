// Package config loads docrag settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/chunker"
	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/retrieval"
)

// Config holds the settings of every docrag component.
type Config struct {
	// DatabasePath is the badger directory.
	DatabasePath string
	// ListenAddr is the HTTP listen address of `docrag serve`.
	ListenAddr string

	AI        *ai.Config
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
}

// IngestionConfig controls chunking and the embedding workers.
type IngestionConfig struct {
	Workers      int // 0 uses the pipeline default
	QueueSize    int
	Chunking     bool
	ChunkSize    int
	ChunkOverlap int
	MaxAttempts  int
	RetryDelay   time.Duration
	RateLimit    float64 // Embedding calls per second, 0 is unlimited
	RateBurst    int
}

// ProcessOptions returns the chunking options of an embedding pass.
func (c IngestionConfig) ProcessOptions() ingestion.ProcessOptions {
	return ingestion.ProcessOptions{
		Chunking:     c.Chunking,
		MaxChunkSize: c.ChunkSize,
		Overlap:      c.ChunkOverlap,
	}
}

// RetrievalConfig controls evidence retrieval.
type RetrievalConfig struct {
	MinSimilarity float32
	EvidenceLimit int
}

// ChatConfig controls conversations.
type ChatConfig struct {
	HistoryLimit int
	Titles       bool
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DatabasePath: "docrag.db",
		ListenAddr:   ":8080",
		AI:           ai.DefaultConfig(),
		Ingestion: IngestionConfig{
			QueueSize:    ingestion.DefaultQueueSize,
			Chunking:     true,
			ChunkSize:    chunker.DefaultChunkSize,
			ChunkOverlap: chunker.DefaultChunkOverlap,
			MaxAttempts:  ingestion.DefaultMaxAttempts,
			RetryDelay:   ingestion.DefaultRetryDelay,
			RateBurst:    1,
		},
		Retrieval: RetrievalConfig{
			MinSimilarity: retrieval.DefaultMinSimilarity,
			EvidenceLimit: retrieval.DefaultLimit,
		},
		Chat: ChatConfig{
			HistoryLimit: conversation.DefaultHistoryLimit,
			Titles:       true,
		},
	}
}

// Load reads envFile, if given and present, into the environment and builds
// the configuration from it. Variables already set in the environment win
// over the file. Malformed values are errors.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	e := &env{}

	cfg.DatabasePath = e.str("DOCRAG_DB", cfg.DatabasePath)
	cfg.ListenAddr = e.str("DOCRAG_LISTEN", cfg.ListenAddr)

	a := cfg.AI
	a.Backend = e.str("DOCRAG_AI_BACKEND", a.Backend)
	if host := e.str("DOCRAG_AI_HOST", ""); host != "" {
		a.EmbeddingHost, a.GenerationHost = host, host
	}
	a.EmbeddingHost = e.str("VECTOR_CONVERT_LLM_URL", a.EmbeddingHost)
	a.GenerationHost = e.str("LIGHTWEIGHT_LLM_URL", a.GenerationHost)
	a.APIKey = e.str("OPENAI_API_KEY", a.APIKey)
	a.EmbeddingModel = e.str("DOCRAG_EMBEDDING_MODEL", a.EmbeddingModel)
	a.GenerationModel = e.str("LLM_MODEL", a.GenerationModel)
	a.EmbeddingTimeout = e.duration("DOCRAG_EMBEDDING_TIMEOUT", a.EmbeddingTimeout)
	a.GenerationTimeout = e.duration("DOCRAG_GENERATION_TIMEOUT", a.GenerationTimeout)
	a.MaxLength = e.integer("DOCRAG_MAX_LENGTH", a.MaxLength)
	a.Temperature = e.float("DOCRAG_TEMPERATURE", a.Temperature)

	in := &cfg.Ingestion
	in.Workers = e.integer("DOCRAG_WORKERS", in.Workers)
	in.QueueSize = e.integer("DOCRAG_QUEUE_SIZE", in.QueueSize)
	in.Chunking = e.boolean("DOCRAG_CHUNKING", in.Chunking)
	in.ChunkSize = e.integer("DOCRAG_CHUNK_SIZE", in.ChunkSize)
	in.ChunkOverlap = e.integer("DOCRAG_CHUNK_OVERLAP", in.ChunkOverlap)
	in.MaxAttempts = e.integer("DOCRAG_MAX_ATTEMPTS", in.MaxAttempts)
	in.RetryDelay = e.duration("DOCRAG_RETRY_DELAY", in.RetryDelay)
	in.RateLimit = e.float("DOCRAG_EMBED_RATE", in.RateLimit)
	in.RateBurst = e.integer("DOCRAG_EMBED_BURST", in.RateBurst)

	cfg.Retrieval.MinSimilarity = float32(e.float("DOCRAG_MIN_SIMILARITY", float64(cfg.Retrieval.MinSimilarity)))
	cfg.Retrieval.EvidenceLimit = e.integer("DOCRAG_EVIDENCE_LIMIT", cfg.Retrieval.EvidenceLimit)
	cfg.Chat.HistoryLimit = e.integer("DOCRAG_HISTORY_LIMIT", cfg.Chat.HistoryLimit)
	cfg.Chat.Titles = e.boolean("DOCRAG_TITLES", cfg.Chat.Titles)

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that the components would otherwise reject late.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("config: database path is required")
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if c.Ingestion.ChunkSize < 1 {
		return errors.New("config: chunk size must be positive")
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return errors.New("config: chunk overlap must be between 0 and the chunk size")
	}
	if c.Ingestion.MaxAttempts < 1 {
		return ingestion.ErrInvalidMaxAttempts
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return errors.New("config: min similarity must be between 0 and 1")
	}
	return nil
}

// env reads typed variables and collects parse errors.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func (e *env) float(key string, def float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return def
	}
	return v
}

func (e *env) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return def
	}
	return v
}

// duration accepts Go durations ("45s") or plain seconds ("45").
func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}
