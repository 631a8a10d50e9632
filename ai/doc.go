// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the external model services used by docrag.
//
// The package is designed around three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Answers a question from retrieved context and prior turns
//   - AIProvider: Aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/service: the standalone /embed and /chat HTTP model services
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, service.NewProvider) return
// interface types. Mock constructors return concrete types so tests can
// inject behavior and assert call counts:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, ai.EmbeddingError(errors.New("down"))
//	}
//
// # Errors
//
// Every failure of an external service surfaces as *UpstreamError, which
// matches core.ErrUpstream. Callers bound each call with the timeouts in
// Config; implementations honor context cancellation.
package ai
