package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
)

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrManagerRequired is returned when a conversation manager is not provided.
	ErrManagerRequired = errors.New("conversation manager required")

	// ErrChatRequired is returned when a chat service is not provided.
	ErrChatRequired = errors.New("chat required")

	errInvalidID = fmt.Errorf("%w: invalid id", core.ErrValidation)
)

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStateConflict), errors.Is(err, core.ErrEmbeddingInFlight):
		return http.StatusConflict
	case errors.Is(err, core.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ingestion.ErrQueueFull), errors.Is(err, ingestion.ErrPipelineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as a JSON error body and stops the handler chain.
func (s *Server) abort(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}
