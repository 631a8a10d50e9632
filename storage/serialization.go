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

package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docrag/core"
)

func decodeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, decodeErr(err)
	}
	return id, nil
}

// MarshalInt serializes an int to bytes.
func MarshalInt(v int) []byte {
	buf := make([]byte, varint.Int.Size(v))
	varint.Int.Marshal(v, buf)
	return buf
}

// UnmarshalInt deserializes an int from bytes.
func UnmarshalInt(data []byte) (int, error) {
	v, _, err := varint.Int.Unmarshal(data)
	if err != nil {
		return 0, decodeErr(err)
	}
	return v, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
// A document stored without tags decodes with nil Tags.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	if len(doc.Tags) == 0 {
		doc.Tags = nil
	}
	return &doc, nil
}

// MarshalEmbeddingRecord serializes an EmbeddingRecord to bytes.
func MarshalEmbeddingRecord(rec *core.EmbeddingRecord) []byte {
	buf := make([]byte, core.EmbeddingRecordMUS.Size(*rec))
	core.EmbeddingRecordMUS.Marshal(*rec, buf)
	return buf
}

// UnmarshalEmbeddingRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalEmbeddingRecord(data []byte) (*core.EmbeddingRecord, error) {
	rec, _, err := core.EmbeddingRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &rec, nil
}

// MarshalConversation serializes a Conversation to bytes.
func MarshalConversation(conv *core.Conversation) []byte {
	buf := make([]byte, core.ConversationMUS.Size(*conv))
	core.ConversationMUS.Marshal(*conv, buf)
	return buf
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	conv, _, err := core.ConversationMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	if len(conv.DocumentIds) == 0 {
		conv.DocumentIds = nil
	}
	return &conv, nil
}

// MarshalTurn serializes a Turn to bytes.
func MarshalTurn(turn *core.Turn) []byte {
	buf := make([]byte, core.TurnMUS.Size(*turn))
	core.TurnMUS.Marshal(*turn, buf)
	return buf
}

// UnmarshalTurn deserializes a Turn from bytes.
func UnmarshalTurn(data []byte) (*core.Turn, error) {
	turn, _, err := core.TurnMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	if len(turn.Sources) == 0 {
		turn.Sources = nil
	}
	return &turn, nil
}
