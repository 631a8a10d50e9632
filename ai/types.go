package ai

import "github.com/poiesic/docrag/core"

// HistoryMessage is a prior conversation turn passed to the generator.
type HistoryMessage struct {
	Role    core.Role
	Content string
}

// GenerationRequest is a single answer generation call.
type GenerationRequest struct {
	Message     string
	Context     string // Retrieved evidence, may be empty
	History     []HistoryMessage
	MaxLength   int // Upper bound on generated tokens; 0 uses the service default
	Temperature float64
}

// Usage reports token consumption of a generation call when the service provides it.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// GenerationResponse is the generator's answer.
type GenerationResponse struct {
	Response  string
	ModelInfo map[string]any
	Usage     Usage
}

// HistoryFromTurns converts stored turns to generator history, skipping system turns.
func HistoryFromTurns(turns []*core.Turn) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == core.RoleSystem {
			continue
		}
		history = append(history, HistoryMessage{Role: turn.Role, Content: turn.Content})
	}
	return history
}
