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

// Package openai implements the ai interfaces on top of OpenAI-compatible
// APIs (Ollama, LocalAI, vLLM, OpenAI) using langchaingo.
//
// Embeddings go through langchaingo's embeddings.Embedder with newline
// stripping. Answers are produced with a system prompt carrying the retrieved
// context, the prior conversation turns as chat messages, and the new
// question; max length maps to max tokens.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithGenerationModel("llama3.2"),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
package openai
