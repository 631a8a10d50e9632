package ingestion

import (
	"context"
	"strings"

	"github.com/poiesic/docrag/chunker"
	"github.com/poiesic/docrag/core"
)

// Processor runs a single embedding pass over a document.
// *Orchestrator is the production implementation.
type Processor interface {
	ProcessDocument(ctx context.Context, id core.ID, opts ProcessOptions) (*Outcome, error)
}

// ProcessOptions controls how a document is split into embedding units.
type ProcessOptions struct {
	Chunking     bool // Split long documents; otherwise embed the whole text
	MaxChunkSize int  // Characters per chunk
	Overlap      int  // Characters shared by consecutive chunks
}

// DefaultProcessOptions returns chunking with 1000 character chunks and 200
// characters of overlap.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		Chunking:     true,
		MaxChunkSize: chunker.DefaultChunkSize,
		Overlap:      chunker.DefaultChunkOverlap,
	}
}

// Embedding methods reported in outcomes and notifications.
const (
	MethodChunked = "chunked"
	MethodWhole   = "whole"
)

// unit is one piece of text that gets its own embedding record.
type unit struct {
	index int
	text  string
	whole bool
	hash  core.ID
}

// deriveUnits chunks content longer than the chunk size when chunking is on,
// otherwise the whole content is the single unit. Markdown is split along its
// structure.
func deriveUnits(content string, kind core.ContentKind, opts ProcessOptions) ([]unit, string) {
	size := opts.MaxChunkSize
	if size <= 0 {
		size = chunker.DefaultChunkSize
	}

	if strings.TrimSpace(content) == "" {
		return nil, MethodWhole
	}
	if !opts.Chunking || core.CharCount(content) <= size {
		return []unit{{index: 0, text: content, whole: true, hash: core.Fingerprint(content)}}, MethodWhole
	}

	chunks := chunker.Chunk(content, kind, size, opts.Overlap)
	units := make([]unit, len(chunks))
	for i, text := range chunks {
		units[i] = unit{index: i, text: text, hash: core.Fingerprint(text)}
	}
	return units, MethodChunked
}
