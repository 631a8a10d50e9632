package mock

import (
	"context"
	"sync"

	"github.com/poiesic/docrag/ai"
)

// MockGenerator is a test double for ai.Generator.
// By default it answers with a fixed response and records every request.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error)

	// Response is the default answer. Defaults to "mock answer".
	Response string

	mu       sync.Mutex
	requests []ai.GenerationRequest
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with a fixed default answer.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Response: "mock answer"}
}

// Generate records req and returns the injected or default answer.
func (m *MockGenerator) Generate(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, ai.GenerationError(err)
	}
	return &ai.GenerationResponse{
		Response:  m.Response,
		ModelInfo: map[string]any{"model_name": "mock-generator"},
	}, nil
}

// Requests returns copies of the requests received so far.
func (m *MockGenerator) Requests() []ai.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MockTokenCounter counts whitespace-separated words.
type MockTokenCounter struct{}

var _ ai.TokenCounter = MockTokenCounter{}

// CountTokens returns the number of words in text.
func (MockTokenCounter) CountTokens(text string) int {
	n, inWord := 0, false
	for _, r := range text {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			n++
		}
		inWord = !space
	}
	return n
}
