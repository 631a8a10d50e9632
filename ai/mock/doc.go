// Package mock provides test doubles for the ai interfaces.
//
// Mocks expose function fields for behavior injection and record calls for
// assertions:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return []float32{0.6, 0.8}, nil
//	}
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Returns a fixed answer and records requests
//   - MockTokenCounter: Counts whitespace-separated words
//   - MockProvider: Aggregates mock embedder and generator
package mock
