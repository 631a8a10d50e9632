// Package service implements the ai interfaces over the standalone model
// services: an embedding service answering POST /embed and a generation
// service answering POST /chat.
//
// Usage:
//
//	cfg := ai.NewConfig(
//	    ai.WithBackend(ai.BackendService),
//	    ai.WithEmbeddingHost("http://localhost:8000"),
//	    ai.WithGenerationHost("http://localhost:8001"),
//	)
//	provider, err := service.NewProvider(cfg)
//
// Non-2xx answers and undecodable bodies are returned as *ai.UpstreamError.
package service
