package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
)

func TestUpstreamError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("embedding chunk 3: %w", &UpstreamError{Service: "embedding", Status: 503, Detail: "model loading", Err: cause})

	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "model loading")

	var upstream *UpstreamError
	assert.True(t, errors.As(err, &upstream))
	assert.Equal(t, "embedding", upstream.Service)

	assert.Equal(t, "generation", GenerationError(cause).Service)
	assert.Equal(t, "embedding", EmbeddingError(cause).Service)
}

func TestHistoryFromTurns(t *testing.T) {
	turns := []*core.Turn{
		{Role: core.RoleSystem, Content: "be brief"},
		{Role: core.RoleUser, Content: "what is step 2"},
		{Role: core.RoleAssistant, Content: "Do Y"},
	}
	history := HistoryFromTurns(turns)
	assert.Equal(t, []HistoryMessage{
		{Role: core.RoleUser, Content: "what is step 2"},
		{Role: core.RoleAssistant, Content: "Do Y"},
	}, history)
}

func TestTiktokenCounter_LoadFailure(t *testing.T) {
	counter := NewTokenCounter("")
	assert.Equal(t, DefaultEncoding, counter.encoding)

	loads := 0
	counter.load = func(string) (*tiktoken.Tiktoken, error) {
		loads++
		return nil, errors.New("offline")
	}

	assert.Equal(t, 0, counter.CountTokens("hello world"))
	assert.Equal(t, 0, counter.CountTokens("again"))
	assert.Equal(t, 1, loads)
}
