package mock

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "other")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, DefaultDimensions)
	assert.Equal(t, 3, m.CallCount())

	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockEmbedder_Injection(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.EmbeddingError(ai.ErrEmptyEmbedding)
	}

	_, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Equal(t, 1, m.CallCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestMockEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEmbedder().EmbedText(ctx, "x")
	assert.ErrorIs(t, err, core.ErrUpstream)
}

func TestMockGenerator(t *testing.T) {
	m := NewMockGenerator()
	resp, err := m.Generate(context.Background(), &ai.GenerationRequest{Message: "q", Context: "c"})
	require.NoError(t, err)
	assert.Equal(t, "mock answer", resp.Response)
	require.Len(t, m.Requests(), 1)
	assert.Equal(t, "c", m.Requests()[0].Context)
	assert.Equal(t, 1, m.CallCount())
}

func TestMockTokenCounter(t *testing.T) {
	assert.Equal(t, 0, MockTokenCounter{}.CountTokens(""))
	assert.Equal(t, 3, MockTokenCounter{}.CountTokens(" one two\nthree "))
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockGenerator(), p.Generator())
	assert.NoError(t, p.Close())
}
