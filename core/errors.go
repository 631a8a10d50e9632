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

package core

import "errors"

// Error kinds. Every error surfaced by the pipeline wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown document or conversation.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates a rejected state transition, such as a
	// duplicate embedding trigger.
	ErrStateConflict = errors.New("state conflict")

	// ErrUpstream indicates an embedding or generation service failure.
	ErrUpstream = errors.New("upstream service error")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidConversation indicates a Conversation failed validation.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidTurn indicates a Turn failed validation.
	ErrInvalidTurn = errors.New("invalid turn")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyTitle indicates the title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrInvalidContentKind indicates an unsupported content kind.
	ErrInvalidContentKind = errors.New("invalid content kind")

	// ErrInvalidRole indicates an invalid turn role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptySession indicates a missing session identifier.
	ErrEmptySession = errors.New("session id cannot be empty")

	// ErrSourcesNotAllowed indicates sources attached to a non-assistant turn.
	ErrSourcesNotAllowed = errors.New("only assistant turns may carry sources")

	// ErrNoDocuments indicates an operation needing documents received none.
	ErrNoDocuments = errors.New("no documents")

	// ErrEmbeddingInFlight indicates a document is already being embedded.
	ErrEmbeddingInFlight = errors.New("embedding already in flight")

	// ErrStaleRevision indicates the document changed while work was in flight.
	ErrStaleRevision = errors.New("document revision changed")
)
