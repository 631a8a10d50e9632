package storage

import (
	"testing"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content fingerprint", core.Fingerprint("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.Error(t, err)
}

func TestMarshalUnmarshalDocument(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name string
		doc  *core.Document
	}{
		{
			name: "minimal document",
			doc: &core.Document{
				Id:      core.ID(1),
				Title:   "Guide",
				Content: "Step 1. Do X.",
				Kind:    core.ContentKindText,
				State:   core.StateUnprocessed,
			},
		},
		{
			name: "full document",
			doc: &core.Document{
				Id:             core.ID(7),
				Title:          "Setup",
				Content:        "# Install\n\n1. Download\n2. Run ünïcode",
				Kind:           core.ContentKindMarkdown,
				Size:           36,
				WordCount:      6,
				CreatedAt:      now,
				UpdatedAt:      now.Add(time.Minute),
				Active:         true,
				Tags:           []string{"setup", "howto"},
				Summary:        "How to install",
				State:          core.StateReady,
				StateChangedAt: now.Add(2 * time.Minute),
				Revision:       3,
				ContentHash:    core.Fingerprint("content"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalDocument(tt.doc)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalDocument(data)
			require.NoError(t, err)
			assert.Equal(t, tt.doc, decoded)
		})
	}
}

func TestMarshalUnmarshalEmbeddingRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &core.EmbeddingRecord{
		DocumentId: core.ID(3),
		ChunkIndex: 2,
		ChunkText:  "Step 2. Do Y.",
		Vector:     []float32{0.6, -0.8, 0, 1e-7},
		Dimensions: 4,
		Model:      "nomic-embed-text",
		Latency:    150 * time.Millisecond,
		Revision:   5,
		ChunkHash:  core.Fingerprint("Step 2. Do Y."),
		CreatedAt:  now,
	}

	decoded, err := UnmarshalEmbeddingRecord(MarshalEmbeddingRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestMarshalUnmarshalConversation(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	conv := &core.Conversation{
		Id:           core.ID(9),
		SessionId:    "session-abc",
		DocumentIds:  []core.ID{1, 2, 300000},
		Title:        "Install questions",
		Model:        "llama3",
		CreatedAt:    now,
		LastActiveAt: now.Add(time.Second),
		Active:       true,
	}

	decoded, err := UnmarshalConversation(MarshalConversation(conv))
	require.NoError(t, err)
	assert.Equal(t, conv, decoded)
}

func TestMarshalUnmarshalTurn(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	turn := &core.Turn{
		Id:             core.ID(11),
		ConversationId: core.ID(9),
		Role:           core.RoleAssistant,
		Content:        "Do Y.",
		Sources: []core.Source{
			{DocumentId: 1, Title: "Guide", Snippet: "Step 2. Do Y.", Score: 0.9},
			{DocumentId: 2, Title: "Other", Snippet: "...", Score: 0.5},
		},
		TokenCount: 12,
		Latency:    2 * time.Second,
		CreatedAt:  now,
	}

	decoded, err := UnmarshalTurn(MarshalTurn(turn))
	require.NoError(t, err)
	assert.Equal(t, turn, decoded)
}

func TestUnmarshal_Truncated(t *testing.T) {
	data := MarshalDocument(&core.Document{
		Id:      core.ID(1),
		Title:   "Guide",
		Content: "Some content that is long enough to cut",
		Tags:    []string{"a", "b"},
	})

	_, err := UnmarshalDocument(data[:len(data)/2])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalTurn(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalDocument_UsesGeneratedCodec(t *testing.T) {
	doc := &core.Document{
		Id:        core.ID(5),
		Title:     "Guide",
		Content:   "Step 1. Do X.",
		Kind:      core.ContentKindMarkdown,
		Tags:      []string{"a"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	data := MarshalDocument(doc)
	assert.Len(t, data, core.DocumentMUS.Size(*doc))

	n, err := core.DocumentMUS.Skip(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
}

func TestUnmarshalTurn_NoSources(t *testing.T) {
	turn := &core.Turn{Id: core.ID(1), ConversationId: core.ID(2), Role: core.RoleUser, Content: "hi"}

	decoded, err := UnmarshalTurn(MarshalTurn(turn))
	require.NoError(t, err)
	assert.Nil(t, decoded.Sources)
	assert.Equal(t, turn, decoded)
}
