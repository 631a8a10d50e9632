package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated from database sequences.
type ID uint64

// Fingerprint generates a deterministic hash of text content using BLAKE2b.
// Identical content always produces the identical fingerprint.
func Fingerprint(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentKind identifies the format of a document's raw content.
type ContentKind string

const (
	// ContentKindText is plain text.
	ContentKindText ContentKind = "text"
	// ContentKindMarkdown is markdown formatted text.
	ContentKindMarkdown ContentKind = "markdown"
)

// EmbeddingState tracks where a document is in the embedding lifecycle.
type EmbeddingState int

const (
	// StateUnprocessed means no embedding run exists for the current content.
	StateUnprocessed EmbeddingState = iota + 1
	// StateEmbedding means an embedding run is in flight.
	StateEmbedding
	// StateReady means embeddings are current and usable for vector retrieval.
	StateReady
	// StateFailed means the last embedding run failed.
	StateFailed
)

func (s EmbeddingState) String() string {
	switch s {
	case StateUnprocessed:
		return "unprocessed"
	case StateEmbedding:
		return "embedding"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Document is an uploaded document and its lifecycle flags.
type Document struct {
	Id             ID
	Title          string
	Content        string
	Kind           ContentKind
	Size           int // Character count of Content
	WordCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Active         bool // False once soft deleted
	Tags           []string
	Summary        string
	State          EmbeddingState
	StateChangedAt time.Time
	Revision       uint64 // Incremented on every content change
	ContentHash    ID
}

// Ready reports whether the document's embeddings are current.
func (d *Document) Ready() bool {
	return d.State == StateReady
}

// EmbeddingRecord is the vector for one unit of a document.
// Records are keyed by (DocumentId, ChunkIndex).
type EmbeddingRecord struct {
	DocumentId ID
	ChunkIndex int
	ChunkText  string // Empty when Whole is set
	Whole      bool   // The unit is the entire document
	Vector     []float32
	Dimensions int
	Model      string
	Latency    time.Duration
	Revision   uint64 // Document revision the vector was computed from
	ChunkHash  ID
	CreatedAt  time.Time
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation ties a session to a fixed set of documents.
type Conversation struct {
	Id           ID
	SessionId    string
	DocumentIds  []ID // Fixed at creation
	Title        string
	Model        string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Active       bool
}

// HasDocument reports whether id is in the conversation's document set.
func (c *Conversation) HasDocument(id ID) bool {
	for _, docID := range c.DocumentIds {
		if docID == id {
			return true
		}
	}
	return false
}

// Source attributes part of an answer to a document snippet.
type Source struct {
	DocumentId ID
	Title      string
	Snippet    string
	Score      float32
}

// Turn is a single message within a conversation.
type Turn struct {
	Id             ID
	ConversationId ID
	Role           Role
	Content        string
	Sources        []Source      // Assistant turns only
	TokenCount     int           // 0 when unknown
	Latency        time.Duration // Processing time, 0 when unknown
	CreatedAt      time.Time
}

// EmbeddingMatch is an embedding record matched by vector similarity.
type EmbeddingMatch struct {
	Record *EmbeddingRecord
	Score  float32
}

// DocumentHit is a document matched by lexical search.
type DocumentHit struct {
	Document *Document
	Score    float32
}

// DocumentStats summarizes the active document collection.
type DocumentStats struct {
	TotalDocuments  int
	TotalWords      int
	TotalSize       int
	ContentKinds    map[ContentKind]int
	States          map[EmbeddingState]int
	UploadsLastHour int
	UploadsLastDay  int
}
