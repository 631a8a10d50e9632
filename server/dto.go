package server

import (
	"time"

	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
)

type errorResponse struct {
	Error string `json:"error"`
}

type createDocumentRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Kind    string   `json:"content_type"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// updateDocumentRequest uses pointers so absent fields stay unchanged.
type updateDocumentRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
	Summary *string   `json:"summary"`
}

type documentResponse struct {
	ID              core.ID   `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content,omitempty"`
	Kind            string    `json:"content_type"`
	Size            int       `json:"file_size"`
	WordCount       int       `json:"word_count"`
	Tags            []string  `json:"tags"`
	Summary         string    `json:"summary,omitempty"`
	Active          bool      `json:"is_active"`
	EmbeddingState  string    `json:"embedding_state"`
	EmbeddingsReady bool      `json:"embeddings_ready"`
	Revision        uint64    `json:"revision"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newDocumentResponse(doc *core.Document, withContent bool) documentResponse {
	resp := documentResponse{
		ID:              doc.Id,
		Title:           doc.Title,
		Kind:            string(doc.Kind),
		Size:            doc.Size,
		WordCount:       doc.WordCount,
		Tags:            doc.Tags,
		Summary:         doc.Summary,
		Active:          doc.Active,
		EmbeddingState:  doc.State.String(),
		EmbeddingsReady: doc.Ready(),
		Revision:        doc.Revision,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if withContent {
		resp.Content = doc.Content
	}
	return resp
}

type documentListResponse struct {
	Documents  []documentResponse `json:"documents"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type searchHitResponse struct {
	Document documentResponse `json:"document"`
	Score    float32          `json:"score"`
}

type statsResponse struct {
	TotalDocuments  int            `json:"total_documents"`
	TotalWords      int            `json:"total_words"`
	TotalSize       int            `json:"total_size"`
	ContentTypes    map[string]int `json:"content_types"`
	EmbeddingStates map[string]int `json:"embedding_states"`
	UploadsLastHour int            `json:"uploads_last_hour"`
	UploadsLastDay  int            `json:"uploads_last_day"`
}

func newStatsResponse(stats *core.DocumentStats) statsResponse {
	resp := statsResponse{
		TotalDocuments:  stats.TotalDocuments,
		TotalWords:      stats.TotalWords,
		TotalSize:       stats.TotalSize,
		ContentTypes:    make(map[string]int, len(stats.ContentKinds)),
		EmbeddingStates: make(map[string]int, len(stats.States)),
		UploadsLastHour: stats.UploadsLastHour,
		UploadsLastDay:  stats.UploadsLastDay,
	}
	for kind, n := range stats.ContentKinds {
		resp.ContentTypes[string(kind)] = n
	}
	for state, n := range stats.States {
		resp.EmbeddingStates[state.String()] = n
	}
	return resp
}

type outcomeResponse struct {
	DocumentID   core.ID `json:"document_id"`
	Revision     uint64  `json:"revision"`
	Method       string  `json:"embedding_method"`
	TotalChunks  int     `json:"total_chunks"`
	ChunksSaved  int     `json:"chunks_saved"`
	Dimensions   int     `json:"embedding_dimension"`
	Model        string  `json:"model"`
	DurationMsec int64   `json:"processing_time_ms"`
}

func newOutcomeResponse(o *ingestion.Outcome) outcomeResponse {
	return outcomeResponse{
		DocumentID:   o.DocumentId,
		Revision:     o.Revision,
		Method:       o.Method,
		TotalChunks:  o.TotalUnits,
		ChunksSaved:  o.Embedded,
		Dimensions:   o.Dimensions,
		Model:        o.Model,
		DurationMsec: o.Duration.Milliseconds(),
	}
}

type embeddingResponse struct {
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text,omitempty"`
	Whole      bool      `json:"whole_document"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
	Revision   uint64    `json:"revision"`
	CreatedAt  time.Time `json:"created_at"`
}

type createConversationRequest struct {
	DocumentIDs []core.ID `json:"document_ids"`
	SessionID   string    `json:"session_id"`
	Model       string    `json:"model"`
	Title       string    `json:"title"`
}

type conversationResponse struct {
	ID           core.ID   `json:"id"`
	SessionID    string    `json:"session_id"`
	DocumentIDs  []core.ID `json:"document_ids"`
	Title        string    `json:"title"`
	Model        string    `json:"model,omitempty"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func newConversationResponse(conv *core.Conversation) conversationResponse {
	return conversationResponse{
		ID:           conv.Id,
		SessionID:    conv.SessionId,
		DocumentIDs:  conv.DocumentIds,
		Title:        conv.Title,
		Model:        conv.Model,
		Active:       conv.Active,
		CreatedAt:    conv.CreatedAt,
		LastActiveAt: conv.LastActiveAt,
	}
}

type sourceResponse struct {
	DocumentID core.ID `json:"document_id"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	Score      float32 `json:"score"`
}

func newSourceResponses(sources []core.Source) []sourceResponse {
	out := make([]sourceResponse, len(sources))
	for i, src := range sources {
		out[i] = sourceResponse{
			DocumentID: src.DocumentId,
			Title:      src.Title,
			Snippet:    src.Snippet,
			Score:      src.Score,
		}
	}
	return out
}

type messageResponse struct {
	ID         core.ID          `json:"id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Sources    []sourceResponse `json:"sources,omitempty"`
	TokenCount int              `json:"token_count,omitempty"`
	LatencyMs  int64            `json:"processing_time_ms,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func newMessageResponse(turn *core.Turn) messageResponse {
	resp := messageResponse{
		ID:         turn.Id,
		Role:       string(turn.Role),
		Content:    turn.Content,
		TokenCount: turn.TokenCount,
		LatencyMs:  turn.Latency.Milliseconds(),
		CreatedAt:  turn.CreatedAt,
	}
	if len(turn.Sources) > 0 {
		resp.Sources = newSourceResponses(turn.Sources)
	}
	return resp
}

type chatRequest struct {
	Message string `json:"message"`
}

type documentChatRequest struct {
	Message     string    `json:"message"`
	DocumentIDs []core.ID `json:"document_ids"`
}

type usageResponse struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type replyResponse struct {
	ConversationID core.ID          `json:"conversation_id,omitempty"`
	MessageID      core.ID          `json:"message_id,omitempty"`
	Response       string           `json:"response"`
	Sources        []sourceResponse `json:"sources"`
	Tier           string           `json:"retrieval_tier"`
	Title          string           `json:"title,omitempty"`
	ModelInfo      map[string]any   `json:"model_info,omitempty"`
	Usage          usageResponse    `json:"usage"`
	TokenCount     int              `json:"token_count"`
	LatencyMs      int64            `json:"processing_time_ms"`
}

func newReplyResponse(reply *conversation.Reply) replyResponse {
	return replyResponse{
		ConversationID: reply.ConversationId,
		MessageID:      reply.TurnId,
		Response:       reply.Answer,
		Sources:        newSourceResponses(reply.Sources),
		Tier:           string(reply.Tier),
		Title:          reply.Title,
		ModelInfo:      reply.ModelInfo,
		Usage: usageResponse{
			InputTokens:  reply.Usage.InputTokens,
			OutputTokens: reply.Usage.OutputTokens,
			TotalTokens:  reply.Usage.TotalTokens,
		},
		TokenCount: reply.TokenCount,
		LatencyMs:  reply.Latency.Milliseconds(),
	}
}
