package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestEmbedder_SingleText(t *testing.T) {
	var got map[string]any
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"embeddings": []float32{0.6, 0.8}, "dimension": 2})
	})

	e := NewEmbedder(srv.Client(), srv.URL, "none", "minilm")
	vector, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vector)
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "minilm", e.Model())
}

func TestEmbedder_AlternateFieldNames(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"vector", map[string]any{"vector": []float32{1, 0}, "dimensions": 2}},
		{"embedding", map[string]any{"embedding": []float32{1, 0}}},
		{"nested list", map[string]any{"embeddings": [][]float32{{1, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})
			vector, err := NewEmbedder(srv.Client(), srv.URL, "", "m").EmbedText(context.Background(), "x")
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 0}, vector)
		})
	}
}

func TestEmbedder_Batch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text []string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Text)
		writeJSON(w, http.StatusOK, map[string]any{"embeddings": [][]float32{{1, 0}, {0, 1}}})
	})

	vectors, err := NewEmbedder(srv.Client(), srv.URL, "", "m").EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		target  error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			},
			status: http.StatusServiceUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			status: http.StatusOK,
			target: ai.ErrMalformedResponse,
		},
		{
			name: "empty vector",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"embeddings": []float32{}})
			},
			target: ai.ErrEmptyEmbedding,
		},
		{
			name: "missing vector",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"dimension": 3})
			},
			target: ai.ErrEmptyEmbedding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.handler)
			_, err := NewEmbedder(srv.Client(), srv.URL, "", "m").EmbedText(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrUpstream)

			var upstream *ai.UpstreamError
			require.True(t, errors.As(err, &upstream))
			assert.Equal(t, "embedding", upstream.Service)
			if tt.status != 0 {
				assert.Equal(t, tt.status, upstream.Status)
			}
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestEmbedder_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewEmbedder(srv.Client(), srv.URL, "", "m").EmbedText(ctx, "x")
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerator_Chat(t *testing.T) {
	var got chatRequest
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{
			"response":   " Mix the flour first. ",
			"model_info": map[string]any{"model_name": "tiny"},
			"usage":      map[string]any{"input_tokens": 10, "output_tokens": 5, "total_tokens": 15},
		})
	})

	g := NewGenerator(srv.Client(), srv.URL, "secret")
	resp, err := g.Generate(context.Background(), &ai.GenerationRequest{
		Message:     "What is step 1?",
		Context:     "Step 1: mix the flour.",
		History:     []ai.HistoryMessage{{Role: core.RoleUser, Content: "hi"}, {Role: core.RoleAssistant, Content: "hello"}},
		MaxLength:   200,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Mix the flour first.", resp.Response)
	assert.Equal(t, "tiny", resp.ModelInfo["model_name"])
	assert.Equal(t, ai.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "What is step 1?", got.Message)
	assert.Equal(t, "Step 1: mix the flour.", got.Context)
	assert.Equal(t, 200, got.MaxLength)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, []historyEntry{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}, got.ConversationHistory)
}

func TestGenerator_Failures(t *testing.T) {
	t.Run("bad gateway", func(t *testing.T) {
		srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := NewGenerator(srv.Client(), srv.URL, "").Generate(context.Background(), &ai.GenerationRequest{Message: "q"})
		var upstream *ai.UpstreamError
		require.True(t, errors.As(err, &upstream))
		assert.Equal(t, "generation", upstream.Service)
		assert.Equal(t, http.StatusBadGateway, upstream.Status)
		assert.Equal(t, "boom", upstream.Detail)
	})

	t.Run("empty answer", func(t *testing.T) {
		srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"response": "  "})
		})
		_, err := NewGenerator(srv.Client(), srv.URL, "").Generate(context.Background(), &ai.GenerationRequest{Message: "q"})
		assert.ErrorIs(t, err, ai.ErrEmptyResponse)
		assert.ErrorIs(t, err, core.ErrUpstream)
	})
}

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithBackend(ai.BackendService),
		ai.WithHost("http://localhost:8000/"),
	)
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "http://localhost:8000/embed", p.Embedder().(*Embedder).url)
	assert.Equal(t, "http://localhost:8000/chat", p.Generator().(*Generator).url)
	assert.Equal(t, "nomic-embed-text", p.Embedder().Model())

	_, err = NewProvider(ai.NewConfig(ai.WithBackend(ai.BackendService), ai.WithEmbeddingModel("")))
	assert.Error(t, err)
}
