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

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Title must not be blank
//   - Content must not be blank
//   - Kind must be text or markdown
//
// NOT validated (computed by the store):
//   - Size, WordCount, ContentHash
//   - State (starts unprocessed)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: %w: document is nil", ErrValidation, ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidDocument, ErrEmptyTitle)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidDocument, ErrEmptyContent)
	}

	if err := ValidateContentKind(doc.Kind); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidDocument, err)
	}

	return nil
}

// ValidateContentKind validates that a ContentKind has a supported value.
func ValidateContentKind(kind ContentKind) error {
	if kind != ContentKindText && kind != ContentKindMarkdown {
		return fmt.Errorf("%w: %q", ErrInvalidContentKind, kind)
	}
	return nil
}

// ValidateConversation validates a Conversation before creation.
func ValidateConversation(conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: %w: conversation is nil", ErrValidation, ErrInvalidConversation)
	}

	if strings.TrimSpace(conv.SessionId) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidConversation, ErrEmptySession)
	}

	return nil
}

// ValidateTurn validates a Turn according to domain rules.
//
// Validation rules:
//   - Role must be user, assistant or system
//   - Content must not be blank
//   - Only assistant turns may carry sources
//
// Membership of sources in the conversation's document set is checked by
// the conversation manager, which owns that relationship.
func ValidateTurn(turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("%w: %w: turn is nil", ErrValidation, ErrInvalidTurn)
	}

	if err := ValidateRole(turn.Role); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidTurn, err)
	}

	if strings.TrimSpace(turn.Content) == "" {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidTurn, ErrEmptyContent)
	}

	if len(turn.Sources) > 0 && turn.Role != RoleAssistant {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidTurn, ErrSourcesNotAllowed)
	}

	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
}
