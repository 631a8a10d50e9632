package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/docrag/ai"
)

var _ ai.Embedder = (*Embedder)(nil)

// embedRequest is the /embed request body. Text is a string or a list of strings.
type embedRequest struct {
	Text any `json:"text"`
}

// embedResponse accepts every field name the embedding services are known to
// answer with. Vectors are held raw because a single input yields one vector
// and a list input yields a list of vectors.
type embedResponse struct {
	Embeddings json.RawMessage `json:"embeddings"`
	Embedding  json.RawMessage `json:"embedding"`
	Vector     json.RawMessage `json:"vector"`
	Dimension  int             `json:"dimension"`
	Dimensions int             `json:"dimensions"`
}

func (r *embedResponse) raw() json.RawMessage {
	for _, candidate := range []json.RawMessage{r.Embeddings, r.Embedding, r.Vector} {
		if len(candidate) > 0 && string(candidate) != "null" {
			return candidate
		}
	}
	return nil
}

// vectors decodes the response into a list of vectors.
func (r *embedResponse) vectors() ([][]float32, error) {
	raw := r.raw()
	if raw == nil {
		return nil, ai.ErrEmptyEmbedding
	}

	var many [][]float32
	if err := json.Unmarshal(raw, &many); err == nil {
		if len(many) == 0 {
			return nil, ai.ErrEmptyEmbedding
		}
		return many, nil
	}
	var one []float32
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err)
	}
	return [][]float32{one}, nil
}

func (r *embedResponse) dimension() int {
	if r.Dimensions != 0 {
		return r.Dimensions
	}
	return r.Dimension
}

// Embedder calls the embedding service's /embed endpoint.
type Embedder struct {
	client *http.Client
	url    string
	apiKey string
	model  string
	logger *slog.Logger
}

// NewEmbedder creates an embedder for the service at host.
func NewEmbedder(client *http.Client, host, apiKey, model string) *Embedder {
	return &Embedder{
		client: client,
		url:    host + "/embed",
		apiKey: apiKey,
		model:  model,
		logger: slog.Default().With("component", "service-embedder"),
	}
}

// Model returns the model name recorded on stored vectors.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds a batch in a single call.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts, len(texts))
}

func (e *Embedder) embed(ctx context.Context, text any, want int) ([][]float32, error) {
	result := postJSON[embedResponse](ctx, e.client, "embedding", e.url, e.apiKey, embedRequest{Text: text})
	resp, err := result.Get()
	if err != nil {
		return nil, err
	}

	vectors, err := resp.vectors()
	if err != nil {
		return nil, ai.EmbeddingError(err)
	}
	if len(vectors) != want {
		return nil, ai.EmbeddingError(fmt.Errorf("%w: expected %d vectors, got %d", ai.ErrMalformedResponse, want, len(vectors)))
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, ai.EmbeddingError(ai.ErrEmptyEmbedding)
		}
	}
	if dim := resp.dimension(); dim != 0 && dim != len(vectors[0]) {
		e.logger.Warn("reported dimension differs from vector length",
			"reported", dim, "actual", len(vectors[0]))
	}
	return vectors, nil
}
