package ai

import (
	"errors"
	"fmt"

	"github.com/poiesic/docrag/core"
)

var (
	// ErrEmptyEmbedding indicates the embedding service returned no vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrEmptyResponse indicates the generation service returned no answer.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse indicates a response body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnknownBackend indicates a Config.Backend value with no implementation.
	ErrUnknownBackend = errors.New("unknown AI backend")
)

// UpstreamError reports a failed call to an external model service.
// It matches core.ErrUpstream with errors.Is.
type UpstreamError struct {
	Service string // "embedding" or "generation"
	Status  int    // HTTP status when known, otherwise 0
	Detail  string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s service failed", e.Service)
	if e.Status != 0 {
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match core.ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == core.ErrUpstream
}

// EmbeddingError wraps err as an embedding service failure.
func EmbeddingError(err error) *UpstreamError {
	return &UpstreamError{Service: "embedding", Err: err}
}

// GenerationError wraps err as a generation service failure.
func GenerationError(err error) *UpstreamError {
	return &UpstreamError{Service: "generation", Err: err}
}
