package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poiesic/docrag/conversation"
)

// createConversation starts a conversation. A session id is generated when
// the caller has none.
func (s *Server) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := bindJSON(c, &req); err != nil {
		s.abort(c, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}

	ctx := c.Request.Context()
	id, err := s.convs.CreateConversation(ctx, conversation.NewConversation{
		DocumentIDs: req.DocumentIDs,
		SessionID:   req.SessionID,
		Model:       req.Model,
		Title:       req.Title,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	conv, err := s.convs.GetConversation(ctx, id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newConversationResponse(conv))
}

func (s *Server) getConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	conv, err := s.convs.GetConversation(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newConversationResponse(conv))
}

func (s *Server) conversationBySession(c *gin.Context) {
	conv, err := s.convs.GetConversationBySession(c.Request.Context(), c.Param("session"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newConversationResponse(conv))
}

func (s *Server) deactivateConversation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := s.convs.Deactivate(c.Request.Context(), id); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.abort(c, err)
		return
	}

	turns, err := s.convs.ListMessages(c.Request.Context(), id, limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	resp := make([]messageResponse, len(turns))
	for i, turn := range turns {
		resp[i] = newMessageResponse(turn)
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "messages": resp})
}

func (s *Server) ask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		s.abort(c, err)
		return
	}

	reply, err := s.chat.Ask(c.Request.Context(), id, req.Message)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newReplyResponse(reply))
}

// documentChat answers a question over documents without a conversation.
func (s *Server) documentChat(c *gin.Context) {
	var req documentChatRequest
	if err := bindJSON(c, &req); err != nil {
		s.abort(c, err)
		return
	}

	reply, err := s.chat.AskDocuments(c.Request.Context(), req.Message, req.DocumentIDs)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newReplyResponse(reply))
}
