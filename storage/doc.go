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

// Package storage provides the storage abstraction layer for docrag.
//
// This package defines repository interfaces that decouple the storage
// implementation from the ingestion, retrieval and conversation logic.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the repository interfaces:
//
//	docs, err := badger.NewDocumentRepository(backend) // storage.DocumentRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Architecture
//
//   - DocumentRepository: documents, their revisions and embedding state
//   - EmbeddingRepository: per-chunk vectors and similarity search
//   - ConversationRepository: conversations and their turns
//
// Documents carry the compare-and-set state used to guarantee that at most one
// embedding run is in flight per document (see TransitionState). Embedding
// records are tagged with the document revision they were computed from, and
// writes for a superseded revision are rejected with ErrStaleRevision.
//
// # Serialization
//
// Records are encoded with the mus-go primitive serializers. Times are stored as
// Unix microseconds in UTC.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repos, err := badger.OpenRepositories(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
