// Package chunker splits document text into bounded, overlapping chunks for
// embedding.
//
// Text is first divided into blocks at blank lines and section starts
// (markdown headings, numbered or lettered items, bullets, "Step N" lines).
// Blocks longer than the chunk size are split with langchaingo's markdown or
// recursive character splitter, chosen by the document's content kind. Plain
// text breaks at sentence ends before it breaks between words. The
// pieces are then packed greedily into chunks of at most the configured
// size. Words are never split, so a single word longer than the limit forms
// its own chunk.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docrag/core"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of characters repeated
	// from the end of one chunk at the start of the next.
	DefaultChunkOverlap = 200
)

var (
	sectionStart = []*regexp.Regexp{
		regexp.MustCompile(`^\d+\.\s`),
		regexp.MustCompile(`^[a-zA-Z]\.\s`),
		regexp.MustCompile(`^[-*•]\s`),
		regexp.MustCompile(`^#`),
		regexp.MustCompile(`(?i)^(step|phase|stage)\s*\d+`),
	}

	// Whitespace only, so joined chunks lose nothing but whitespace and no
	// word is cut.
	textSeparators = []string{"\n\n\n", "\n\n", "\n", " "}

	sentenceEnd = regexp.MustCompile(`([.!?]["')\]]?)[ \t]+`)
)

// Chunk splits text of the given kind into chunks of at most maxChunkSize
// characters with consecutive chunks sharing up to overlap characters of
// whole words. Kinds other than markdown are split as plain text.
//
// Blank text yields no chunks. Text whose trimmed length fits in
// maxChunkSize yields exactly one chunk. A non-positive maxChunkSize uses
// DefaultChunkSize; an overlap not smaller than maxChunkSize is reduced to a
// quarter of it.
func Chunk(text string, kind core.ContentKind, maxChunkSize, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if length(trimmed) <= maxChunkSize {
		return []string{trimmed}
	}

	// Pieces leave room for the overlap carried into the next chunk.
	splitter := splitterFor(kind, maxChunkSize-overlap)
	p := packer{limit: maxChunkSize, overlap: overlap}
	for _, block := range blocks(trimmed) {
		for i, piece := range pieces(splitter, block, maxChunkSize) {
			sep := " "
			if i == 0 {
				sep = "\n\n"
			}
			p.add(piece, sep)
		}
	}
	return p.finish()
}

// IsSectionStart reports whether line opens a new section.
func IsSectionStart(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, re := range sectionStart {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// blocks splits text at blank lines and section starts.
func blocks(text string) []string {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
			out = append(out, block)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case IsSectionStart(line):
			flush()
			current = append(current, line)
		default:
			current = append(current, line)
		}
	}
	flush()
	return out
}

// splitterFor returns the splitter for oversized blocks of the given kind.
// Overlap is applied when pieces are packed, so the splitters run without it.
func splitterFor(kind core.ContentKind, size int) textsplitter.TextSplitter {
	text := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(textSeparators),
	)
	if kind != core.ContentKindMarkdown {
		return sentenceSplitter{text}
	}
	return textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSecondSplitter(text),
	)
}

// sentenceSplitter turns sentence ends into line breaks so the recursive
// splitter cuts there before it cuts at a space. Whitespace inside each part
// is collapsed afterwards.
type sentenceSplitter struct {
	words textsplitter.RecursiveCharacter
}

func (s sentenceSplitter) SplitText(text string) ([]string, error) {
	parts, err := s.words.SplitText(sentenceEnd.ReplaceAllString(text, "$1\n"))
	if err != nil {
		return nil, err
	}
	for i, part := range parts {
		parts[i] = strings.Join(strings.Fields(part), " ")
	}
	return parts, nil
}

// pieces breaks a block into units no longer than limit, except single words
// that are longer on their own.
func pieces(splitter textsplitter.TextSplitter, block string, limit int) []string {
	if length(block) <= limit {
		return []string{block}
	}

	parts, err := splitter.SplitText(block)
	if err != nil {
		parts = []string{block}
	}
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case length(part) <= limit:
			out = append(out, part)
		default:
			out = append(out, packWords(strings.Fields(part), limit)...)
		}
	}
	return out
}

func packWords(words []string, limit int) []string {
	var (
		out     []string
		current strings.Builder
		size    int
	)
	for _, word := range words {
		n := length(word)
		if size > 0 && size+1+n > limit {
			out = append(out, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte(' ')
			size++
		}
		current.WriteString(word)
		size += n
	}
	if size > 0 {
		out = append(out, current.String())
	}
	return out
}

// packer accumulates pieces into chunks.
type packer struct {
	limit   int
	overlap int
	chunks  []string
	current strings.Builder
	size    int
}

func (p *packer) add(piece, sep string) {
	n := length(piece)
	if p.size > 0 && p.size+length(sep)+n > p.limit {
		p.flush(n)
		sep = " "
	}
	if p.size > 0 {
		p.current.WriteString(sep)
		p.size += length(sep)
	}
	p.current.WriteString(piece)
	p.size += n
}

// flush closes the current chunk and seeds the next one with trailing words
// of the closed chunk, leaving room for a following piece of length next.
func (p *packer) flush(next int) {
	chunk := p.current.String()
	p.chunks = append(p.chunks, chunk)
	p.current.Reset()
	p.size = 0

	budget := min(p.overlap, p.limit-next-1)
	if tail := trailingWords(chunk, budget); tail != "" {
		p.current.WriteString(tail)
		p.size = length(tail)
	}
}

func (p *packer) finish() []string {
	if p.size > 0 {
		p.chunks = append(p.chunks, p.current.String())
	}
	return p.chunks
}

// trailingWords returns the longest run of whole trailing words of text whose
// space-joined length is at most budget.
func trailingWords(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	words := strings.Fields(text)
	size := 0
	start := len(words)
	for i := len(words) - 1; i >= 0; i-- {
		n := length(words[i])
		if start < len(words) {
			n++
		}
		if size+n > budget {
			break
		}
		size += n
		start = i
	}
	return strings.Join(words[start:], " ")
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
