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

package badger

import "github.com/poiesic/docrag/storage"

// Repositories bundles the repositories opened over one backend.
type Repositories struct {
	Documents     storage.DocumentRepository
	Embeddings    storage.EmbeddingRepository
	Conversations storage.ConversationRepository
	Backend       *Backend
}

// OpenRepositories opens all repositories over an existing backend.
func OpenRepositories(backend *Backend) (*Repositories, error) {
	docs, err := NewDocumentRepository(backend)
	if err != nil {
		return nil, err
	}
	embeddings, err := NewEmbeddingRepository(backend)
	if err != nil {
		docs.Close()
		return nil, err
	}
	convs, err := NewConversationRepository(backend)
	if err != nil {
		embeddings.Close()
		docs.Close()
		return nil, err
	}
	return &Repositories{
		Documents:     docs,
		Embeddings:    embeddings,
		Conversations: convs,
		Backend:       backend,
	}, nil
}

// Close releases the repositories, then the backend.
func (r *Repositories) Close() error {
	r.Conversations.Close()
	r.Embeddings.Close()
	r.Documents.Close()
	return r.Backend.Close()
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	repos, err := OpenRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repos, nil
}
