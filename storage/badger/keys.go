package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/docrag/core"
)

// Key prefixes for different data types
const (
	documentPrefix       = "doc:"
	documentDatePrefix   = "docd:"
	embeddingPrefix      = "emb:"
	embeddingDimPrefix   = "embdim:"
	conversationPrefix   = "conv:"
	sessionIndexPrefix   = "convs:"
	turnPrefix           = "turn:"
	documentIDSeq        = "seq:doc"
	conversationIDSeq    = "seq:conv"
	turnIDSeq            = "seq:turn"
	sessionKeySeparator  = 0x00
	dateIndexSuffixBytes = 16
)

// appendUint64 appends v in BigEndian order so lexicographic sort works correctly.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// newKey starts a key with prefix, reserving room for extra bytes.
func newKey(prefix string, extra int) []byte {
	return append(make([]byte, 0, len(prefix)+extra), prefix...)
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	buf := newKey(documentPrefix, 8)
	return appendUint64(buf, uint64(id))
}

// makeDocumentDateKey generates a composite key for the creation date index.
// Format: prefix:timestamp:id
func makeDocumentDateKey(createdAt time.Time, id core.ID) []byte {
	buf := newKey(documentDatePrefix, dateIndexSuffixBytes)
	buf = appendUint64(buf, uint64(createdAt.UnixMicro()))
	return appendUint64(buf, uint64(id))
}

// makeEmbeddingKey generates a key for the embedding of one document chunk.
// Format: prefix:documentID:chunkIndex
func makeEmbeddingKey(documentID core.ID, chunkIndex int) []byte {
	buf := makePartialEmbeddingKey(documentID)
	return binary.BigEndian.AppendUint32(buf, uint32(chunkIndex))
}

// makePartialEmbeddingKey generates the prefix shared by all chunks of a document.
func makePartialEmbeddingKey(documentID core.ID) []byte {
	buf := newKey(embeddingPrefix, 12)
	return appendUint64(buf, uint64(documentID))
}

// makeEmbeddingDimKey generates the key of a model's registered vector size.
func makeEmbeddingDimKey(model string) []byte {
	return append([]byte(embeddingDimPrefix), model...)
}

// makeConversationKey generates a key for a conversation by ID.
func makeConversationKey(id core.ID) []byte {
	buf := newKey(conversationPrefix, 8)
	return appendUint64(buf, uint64(id))
}

// makeSessionKey generates a composite key for the session index.
// Format: prefix:session\x00:timestamp:id
func makeSessionKey(sessionID string, createdAt time.Time, id core.ID) []byte {
	buf := makePartialSessionKey(sessionID)
	buf = appendUint64(buf, uint64(createdAt.UnixMicro()))
	return appendUint64(buf, uint64(id))
}

// makePartialSessionKey generates the prefix shared by a session's conversations.
func makePartialSessionKey(sessionID string) []byte {
	buf := newKey(sessionIndexPrefix, len(sessionID)+1)
	buf = append(buf, sessionID...)
	return append(buf, sessionKeySeparator)
}

// makeTurnKey generates a key for a turn within its conversation.
// Turn IDs come from a sequence, so key order is insertion order.
func makeTurnKey(conversationID, turnID core.ID) []byte {
	buf := makePartialTurnKey(conversationID)
	return appendUint64(buf, uint64(turnID))
}

// makePartialTurnKey generates the prefix shared by all turns of a conversation.
func makePartialTurnKey(conversationID core.ID) []byte {
	buf := newKey(turnPrefix, 16)
	return appendUint64(buf, uint64(conversationID))
}

// seekLast returns a key that sorts after every key starting with prefix,
// for positioning reverse iterators.
func seekLast(prefix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+dateIndexSuffixBytes)
	buf = append(buf, prefix...)
	for i := 0; i < dateIndexSuffixBytes; i++ {
		buf = append(buf, 0xff)
	}
	return buf
}
