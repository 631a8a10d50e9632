package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/documents"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/retrieval"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const guide = "Step 1. Do X. Step 2. Do Y."

type recordingScheduler struct {
	mu  sync.Mutex
	ids []core.ID
}

func (s *recordingScheduler) Enqueue(_ context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return nil
}

func (s *recordingScheduler) queued() []core.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ID(nil), s.ids...)
}

type fixture struct {
	repos     *badger.Repositories
	scheduler *recordingScheduler
	generator *mock.MockGenerator
	server    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	f := &fixture{
		repos:     repos,
		scheduler: &recordingScheduler{},
		generator: mock.NewMockGenerator(),
	}
	embedder := mock.NewMockEmbedder()

	store, err := documents.NewStore(repos.Documents, documents.WithScheduler(f.scheduler))
	require.NoError(t, err)
	orch, err := ingestion.NewOrchestrator(repos.Documents, repos.Embeddings, embedder)
	require.NoError(t, err)
	manager, err := conversation.NewManager(repos.Conversations, repos.Documents)
	require.NoError(t, err)
	retriever, err := retrieval.NewRetriever(repos.Documents, repos.Embeddings, embedder)
	require.NoError(t, err)
	chat, err := conversation.NewChat(manager, retriever, f.generator,
		conversation.WithTokenCounter(mock.MockTokenCounter{}),
		conversation.WithTitles(false))
	require.NoError(t, err)

	f.server, err = New(Config{
		Documents:     store,
		Conversations: manager,
		Chat:          chat,
		Scheduler:     f.scheduler,
		Embedder:      orch,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) createDocument(t *testing.T, title, content string) documentResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/documents", createDocumentRequest{Title: title, Content: content})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[documentResponse](t, rec)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Equal(t, ErrDocumentStoreRequired, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get(RequestIDHeader))
}

func TestDocumentLifecycle(t *testing.T) {
	f := newFixture(t)

	created := f.createDocument(t, "Guide", guide)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "unprocessed", created.EmbeddingState)
	assert.False(t, created.EmbeddingsReady)
	assert.Equal(t, "text", created.Kind)
	assert.Equal(t, []core.ID{created.ID}, f.scheduler.queued())

	path := fmt.Sprintf("/api/documents/%d", created.ID)
	rec := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, guide, decode[documentResponse](t, rec).Content)

	rec = f.do(t, http.MethodPatch, path, map[string]any{"title": "Better Guide"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[documentResponse](t, rec)
	assert.Equal(t, "Better Guide", updated.Title)
	assert.Equal(t, guide, updated.Content)
	assert.Equal(t, uint64(1), updated.Revision)

	rec = f.do(t, http.MethodPatch, path, map[string]any{"content": "Step 1. Do Z."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), decode[documentResponse](t, rec).Revision)
	assert.Len(t, f.scheduler.queued(), 2)

	rec = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[documentResponse](t, rec).Active)

	rec = f.do(t, http.MethodPatch, path, map[string]any{"title": "Again"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"empty title", http.MethodPost, "/api/documents", createDocumentRequest{Content: "text"}, http.StatusBadRequest},
		{"empty content", http.MethodPost, "/api/documents", createDocumentRequest{Title: "T", Content: "  "}, http.StatusBadRequest},
		{"bad kind", http.MethodPost, "/api/documents", createDocumentRequest{Title: "T", Content: "c", Kind: "pdf"}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/documents", "{", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/documents/abc", nil, http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/documents/0", nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/documents/999", nil, http.StatusNotFound},
		{"unknown delete", http.MethodDelete, "/api/documents/999", nil, http.StatusNotFound},
		{"blank title patch", http.MethodPatch, "/api/documents/999", map[string]any{"title": " "}, http.StatusBadRequest},
		{"empty search", http.MethodGet, "/api/documents/search?q=", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/documents?limit=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestListSearchAndStats(t *testing.T) {
	f := newFixture(t)
	first := f.createDocument(t, "Cooking", "How to boil pasta in salted water.")
	f.createDocument(t, "Gardening", "How to water tomato plants.")
	third := f.createDocument(t, "Taxes", "Filing deadlines and forms.")
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, fmt.Sprintf("/api/documents/%d", third.ID), nil).Code)

	rec := f.do(t, http.MethodGet, "/api/documents?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[documentListResponse](t, rec)
	require.Len(t, page.Documents, 1)
	assert.Empty(t, page.Documents[0].Content)
	assert.NotEmpty(t, page.NextCursor)

	rec = f.do(t, http.MethodGet, "/api/documents", nil)
	assert.Len(t, decode[documentListResponse](t, rec).Documents, 2)
	rec = f.do(t, http.MethodGet, "/api/documents?include_deleted=true", nil)
	assert.Len(t, decode[documentListResponse](t, rec).Documents, 3)

	rec = f.do(t, http.MethodGet, "/api/documents/search?q=pasta+water", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[struct {
		Results []searchHitResponse `json:"results"`
	}](t, rec).Results
	require.Len(t, results, 2)
	assert.Equal(t, first.ID, results[0].Document.ID)

	rec = f.do(t, http.MethodGet, "/api/documents/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[statsResponse](t, rec)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.ContentTypes["text"])
	assert.Equal(t, 2, stats.EmbeddingStates["unprocessed"])
	assert.Equal(t, 2, stats.UploadsLastHour)
}

func TestEmbedDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)
	path := fmt.Sprintf("/api/documents/%d", doc.ID)

	rec := f.do(t, http.MethodPost, path+"/embed", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, f.scheduler.queued(), 2)

	rec = f.do(t, http.MethodPost, path+"/embed?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decode[outcomeResponse](t, rec)
	assert.Equal(t, 1, outcome.ChunksSaved)
	assert.Equal(t, ingestion.MethodWhole, outcome.Method)
	assert.Equal(t, mock.DefaultDimensions, outcome.Dimensions)

	rec = f.do(t, http.MethodGet, path, nil)
	assert.True(t, decode[documentResponse](t, rec).EmbeddingsReady)

	rec = f.do(t, http.MethodGet, path+"/embeddings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[struct {
		Embeddings []embeddingResponse `json:"embeddings"`
	}](t, rec)
	require.Len(t, listing.Embeddings, 1)
	assert.True(t, listing.Embeddings[0].Whole)
	assert.Equal(t, "mock-embedding", listing.Embeddings[0].Model)
}

func TestEmbedDocumentWaitSurvivesClientHangup(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/documents/%d/embed?wait=true", doc.ID), nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := f.repos.Documents.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateReady, stored.State)
}

func TestEmbedDocumentInFlight(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)
	_, err := f.repos.Documents.TransitionState(context.Background(), doc.ID, doc.Revision, core.StateEmbedding, core.StateUnprocessed)
	require.NoError(t, err)

	path := fmt.Sprintf("/api/documents/%d/embed", doc.ID)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path+"?wait=true", nil).Code)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, fmt.Sprintf("/api/documents/%d", doc.ID), nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, path, nil).Code)
}

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)

	rec := f.do(t, http.MethodPost, "/api/conversations", createConversationRequest{DocumentIDs: []core.ID{doc.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decode[conversationResponse](t, rec)
	_, err := uuid.Parse(conv.SessionID)
	assert.NoError(t, err, "session id should be generated")
	assert.True(t, conv.Active)
	assert.Equal(t, []core.ID{doc.ID}, conv.DocumentIDs)

	path := fmt.Sprintf("/api/conversations/%d", conv.ID)
	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decode[conversationResponse](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/api/conversations/session/"+conv.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decode[conversationResponse](t, rec).ID)

	rec = f.do(t, http.MethodPost, path+"/chat", chatRequest{Message: "What is step 2?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[replyResponse](t, rec)
	assert.Equal(t, "mock answer", reply.Response)
	assert.Equal(t, conv.ID, reply.ConversationID)
	assert.Equal(t, string(retrieval.TierPattern), reply.Tier)
	require.NotEmpty(t, reply.Sources)
	assert.Equal(t, doc.ID, reply.Sources[0].DocumentID)
	assert.Contains(t, reply.Sources[0].Snippet, "Do Y")

	rec = f.do(t, http.MethodGet, path+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[struct {
		Messages []messageResponse `json:"messages"`
	}](t, rec).Messages
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Empty(t, messages[0].Sources)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.NotEmpty(t, messages[1].Sources)
	assert.Equal(t, reply.MessageID, messages[1].ID)

	rec = f.do(t, http.MethodGet, path+"/messages?limit=1", nil)
	assert.Len(t, decode[struct {
		Messages []messageResponse `json:"messages"`
	}](t, rec).Messages, 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, path, nil).Code)
	rec = f.do(t, http.MethodPost, path+"/chat", chatRequest{Message: "Still there?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/conversations/session/"+conv.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationErrors(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)

	rec := f.do(t, http.MethodPost, "/api/conversations", createConversationRequest{DocumentIDs: []core.ID{doc.ID, 999}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/conversations/999/chat", chatRequest{Message: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/conversations", createConversationRequest{SessionID: "s"})
	require.Equal(t, http.StatusCreated, rec.Code)
	empty := decode[conversationResponse](t, rec)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/chat", empty.ID), chatRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "conversation without documents")

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/chat", empty.ID), chatRequest{Message: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentChat(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t, "Guide", guide)

	rec := f.do(t, http.MethodPost, "/api/rag/document-chat", documentChatRequest{
		Message:     "What is step 2?",
		DocumentIDs: []core.ID{doc.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[replyResponse](t, rec)
	assert.Zero(t, reply.ConversationID)
	assert.Equal(t, "mock answer", reply.Response)
	assert.NotEmpty(t, reply.Sources)

	rec = f.do(t, http.MethodPost, "/api/rag/document-chat", documentChatRequest{Message: "What is step 2?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.generator.GenerateFunc = func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
		return nil, ai.GenerationError(errors.New("model offline"))
	}
	rec = f.do(t, http.MethodPost, "/api/rag/document-chat", documentChatRequest{
		Message:     "What is step 2?",
		DocumentIDs: []core.ID{doc.ID},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.Contains(decode[errorResponse](t, rec).Error, "model offline"))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{core.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("x: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrStateConflict, http.StatusConflict},
		{ai.EmbeddingError(errors.New("down")), http.StatusBadGateway},
		{ingestion.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusOf(tt.err), tt.err.Error())
	}
}
