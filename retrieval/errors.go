package retrieval

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// errNotApplicable marks a tier that had nothing to work with.
	errNotApplicable = errors.New("tier not applicable")

	// errNoEvidence marks a tier that ran and found nothing.
	errNoEvidence = errors.New("no evidence")
)
