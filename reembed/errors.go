package reembed

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrProcessorRequired is returned when a document processor is not provided.
	ErrProcessorRequired = errors.New("document processor required")
)
