package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrProcessorRequired is returned when a pipeline has nothing to run jobs with.
	ErrProcessorRequired = errors.New("processor required")

	// ErrQueueFull is returned by Enqueue when the job queue has no room.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrPipelineClosed is returned by Enqueue after Release.
	ErrPipelineClosed = errors.New("ingestion pipeline closed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
