package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/documents"
	"github.com/samber/mo"
)

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (core.ID, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w %q", errInvalidID, c.Param("id"))
	}
	return core.ID(id), nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrValidation, name)
	}
	return n, nil
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %w", core.ErrValidation, err)
	}
	return nil
}

func (s *Server) createDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := bindJSON(c, &req); err != nil {
		s.abort(c, err)
		return
	}

	ctx := c.Request.Context()
	id, err := s.docs.Create(ctx, documents.NewDocument{
		Title:   req.Title,
		Content: req.Content,
		Kind:    core.ContentKind(req.Kind),
		Tags:    req.Tags,
		Summary: req.Summary,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDocumentResponse(doc, false))
}

func (s *Server) listDocuments(c *gin.Context) {
	size, err := queryInt(c, "limit", documents.DefaultPageSize)
	if err != nil {
		s.abort(c, err)
		return
	}

	page, err := s.docs.List(c.Request.Context(), documents.ListOptions{
		ActiveOnly: c.Query("include_deleted") != "true",
		PageSize:   size,
		Cursor:     c.Query("cursor"),
	})
	if err != nil {
		s.abort(c, err)
		return
	}

	resp := documentListResponse{
		Documents:  make([]documentResponse, len(page.Documents)),
		NextCursor: page.NextCursor,
	}
	for i, doc := range page.Documents {
		resp.Documents[i] = newDocumentResponse(doc, false)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) searchDocuments(c *gin.Context) {
	limit, err := queryInt(c, "limit", documents.DefaultSearchLimit)
	if err != nil {
		s.abort(c, err)
		return
	}

	hits, err := s.docs.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}

	resp := make([]searchHitResponse, len(hits))
	for i, hit := range hits {
		resp[i] = searchHitResponse{Document: newDocumentResponse(hit.Document, false), Score: hit.Score}
	}
	c.JSON(http.StatusOK, gin.H{"results": resp})
}

func (s *Server) documentStats(c *gin.Context) {
	stats, err := s.docs.Stats(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatsResponse(stats))
}

func (s *Server) getDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	doc, err := s.docs.Get(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newDocumentResponse(doc, true))
}

func (s *Server) updateDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	var req updateDocumentRequest
	if err := bindJSON(c, &req); err != nil {
		s.abort(c, err)
		return
	}

	doc, err := s.docs.Update(c.Request.Context(), id, documents.Patch{
		Title:   mo.PointerToOption(req.Title),
		Content: mo.PointerToOption(req.Content),
		Summary: mo.PointerToOption(req.Summary),
		Tags:    mo.PointerToOption(req.Tags),
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newDocumentResponse(doc, true))
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := s.docs.SoftDelete(c.Request.Context(), id); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// embedDocument queues an embedding pass, or runs it in the request with
// ?wait=true.
func (s *Server) embedDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	ctx := c.Request.Context()

	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	if !doc.Active {
		s.abort(c, fmt.Errorf("%w: document %d is deleted", core.ErrValidation, id))
		return
	}

	if c.Query("wait") == "true" {
		if s.embedder == nil {
			c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{Error: "synchronous embedding not available"})
			return
		}
		// A client hanging up must not abandon a claimed document.
		outcome, err := s.embedder.ProcessDocument(context.WithoutCancel(ctx), id, s.options)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.JSON(http.StatusOK, newOutcomeResponse(outcome))
		return
	}

	if doc.State == core.StateEmbedding {
		s.abort(c, fmt.Errorf("document %d: %w: %w", id, core.ErrEmbeddingInFlight, core.ErrStateConflict))
		return
	}
	if s.scheduler == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{Error: "embedding queue not available"})
		return
	}
	if err := s.scheduler.Enqueue(ctx, id); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": id, "status": "queued"})
}

func (s *Server) documentEmbeddings(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	if s.embedder == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{Error: "embeddings not available"})
		return
	}

	records, err := s.embedder.GetDocumentEmbeddings(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	resp := make([]embeddingResponse, len(records))
	for i, rec := range records {
		resp[i] = embeddingResponse{
			ChunkIndex: rec.ChunkIndex,
			ChunkText:  rec.ChunkText,
			Whole:      rec.Whole,
			Dimensions: rec.Dimensions,
			Model:      rec.Model,
			Revision:   rec.Revision,
			CreatedAt:  rec.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "embeddings": resp})
}
