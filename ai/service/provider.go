package service

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/docrag/ai"
)

// Provider implements ai.AIProvider over the standalone model services.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	clients   []*http.Client
	logger    *slog.Logger
}

// NewProvider creates a provider whose HTTP clients carry the configured
// embedding and generation timeouts.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedClient := &http.Client{Timeout: config.EmbeddingTimeout}
	genClient := &http.Client{Timeout: config.GenerationTimeout}

	return &Provider{
		embedder:  NewEmbedder(embedClient, config.EmbeddingHost, config.APIKey, config.EmbeddingModel),
		generator: NewGenerator(genClient, config.GenerationHost, config.APIKey),
		clients:   []*http.Client{embedClient, genClient},
		logger:    slog.Default().With("component", "service-provider"),
	}, nil
}

// Embedder returns the /embed client.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the /chat client.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close drops idle connections.
func (p *Provider) Close() error {
	p.logger.Debug("closing service provider")
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
	return nil
}
