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

package ai

import (
	"errors"
	"strings"
	"time"
)

const (
	// BackendOpenAI talks to OpenAI-compatible APIs (Ollama, LocalAI, vLLM, OpenAI).
	BackendOpenAI = "openai"
	// BackendService talks to the standalone /embed and /chat model services.
	BackendService = "service"
)

const (
	// DefaultMaxLength is the default upper bound on generated tokens.
	DefaultMaxLength = 200
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.7
)

// Config holds configuration for AI service providers.
type Config struct {
	// Backend selects the provider implementation: BackendOpenAI or BackendService.
	Backend string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GenerationHost is the base URL for the answer generation service API.
	GenerationHost string

	// APIKey is sent as the bearer token. Local services usually ignore it.
	APIKey string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// GenerationModel is the model identifier to use for answers.
	// Example: "llama3.2", "gpt-4o-mini"
	GenerationModel string

	// EmbeddingTimeout bounds every embedding call.
	EmbeddingTimeout time.Duration

	// GenerationTimeout bounds every generation call.
	GenerationTimeout time.Duration

	// MaxLength is the default upper bound on generated tokens.
	// Default: 200
	MaxLength int

	// Temperature is the default sampling temperature.
	// Default: 0.7
	Temperature float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend selects the provider implementation.
func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerationHost sets the generation service host URL.
func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithHost sets both embedding and generation hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerationModel sets the generation model identifier.
func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

// WithTimeouts sets the embedding and generation call timeouts.
func WithTimeouts(embedding, generation time.Duration) ConfigOption {
	return func(c *Config) {
		c.EmbeddingTimeout = embedding
		c.GenerationTimeout = generation
	}
}

// WithGenerationDefaults sets the default max length and temperature of answers.
func WithGenerationDefaults(maxLength int, temperature float64) ConfigOption {
	return func(c *Config) {
		c.MaxLength = maxLength
		c.Temperature = temperature
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and generation use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Backend:           BackendOpenAI,
		EmbeddingHost:     defaultHost,
		GenerationHost:    defaultHost,
		APIKey:            "none",
		EmbeddingModel:    "nomic-embed-text",
		GenerationModel:   "llama3.2",
		EmbeddingTimeout:  30 * time.Second,
		GenerationTimeout: 60 * time.Second,
		MaxLength:         DefaultMaxLength,
		Temperature:       DefaultTemperature,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// For the OpenAI backend it adds the /v1 suffix to hosts if missing, which is
// required by most OpenAI-compatible APIs. Service hosts only lose a trailing slash.
func (c *Config) Normalize() {
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost, c.Backend == BackendOpenAI)
	c.GenerationHost = normalizeHost(c.GenerationHost, c.Backend == BackendOpenAI)
}

func normalizeHost(host string, versioned bool) string {
	if host == "" {
		return host
	}
	host = strings.TrimSuffix(host, "/")
	if versioned && !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Backend != BackendOpenAI && c.Backend != BackendService {
		return errors.New("ai config: Backend must be openai or service")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GenerationHost == "" {
		return errors.New("ai config: GenerationHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.Backend == BackendOpenAI && c.GenerationModel == "" {
		return errors.New("ai config: GenerationModel is required")
	}
	if c.EmbeddingTimeout <= 0 || c.GenerationTimeout <= 0 {
		return errors.New("ai config: timeouts must be positive")
	}
	if c.MaxLength < 1 {
		return errors.New("ai config: MaxLength must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	return nil
}
