package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an *UpstreamError if the embedding service fails or answers
	// with an empty vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the identifier of the embedding model, recorded on every
	// stored vector.
	Model() string
}

// Generator produces natural-language answers from a question, retrieved
// context and prior conversation turns.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate answers req.Message. Failures of the generation service are
	// returned as *UpstreamError.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
}

// TokenCounter estimates the number of model tokens in a text.
type TokenCounter interface {
	// CountTokens returns the token count of text, or 0 when unknown.
	CountTokens(text string) int
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
