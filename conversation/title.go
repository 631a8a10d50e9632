package conversation

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/docrag/ai"
)

const (
	// DefaultTitle names a conversation whose question has no usable words.
	DefaultTitle = "New Conversation"

	titleInstructions = "You create concise conversation titles. " +
		"Reply with a short, descriptive title of 3 to 6 words that captures the main topic or question. " +
		"Do not use quotes, punctuation or complete sentences. " +
		"Examples: Python Data Analysis, React Component Help, Database Query Optimization"

	titleMaxTokens   = 20
	titleTemperature = 0.3
	maxTitleQuery    = 200
	maxTitleWords    = 8
	maxFallbackWords = 4
	maxFallbackLen   = 50
)

var (
	titlePrefix   = regexp.MustCompile(`(?i)^(title:|conversation:|chat:)\s*`)
	titleSuffix   = regexp.MustCompile(`(?i)\s*(conversation|chat|discussion)$`)
	titleQuotes   = regexp.MustCompile("[\"'`“”‘’]")
	trailingMarks = regexp.MustCompile(`[.!?]+$`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

	unwantedTitle = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(how|what|when|where|why|who)\s`),
		regexp.MustCompile(`\?$`),
		regexp.MustCompile(`(?i)^(please|help|can you)`),
		regexp.MustCompile(`(?i)(conversation|chat|discussion)\s*(about|on)`),
	}

	// Lowercase inside titles
	minorWords = map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "in": true,
		"on": true, "at": true, "to": true, "for": true, "of": true, "with": true,
	}

	// Dropped from fallback titles
	titleStopWords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
		"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "how": true,
		"what": true, "when": true, "where": true, "why": true, "who": true, "can": true,
		"could": true, "would": true, "should": true, "please": true, "help": true, "me": true,
		"i": true, "you": true, "my": true, "your": true, "is": true, "are": true, "was": true,
		"were": true,
	}
)

// Titler names conversations after their first question.
type Titler struct {
	generator ai.Generator // Optional; without one only fallback titles are made
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTitler creates a titler. generator may be nil.
func NewTitler(generator ai.Generator, timeout time.Duration, logger *slog.Logger) *Titler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Titler{generator: generator, timeout: timeout, logger: logger.With("component", "titler")}
}

// Title returns a short title for a conversation that starts with query.
// It asks the generator first and falls back to the query's key words when
// generation fails or produces something that doesn't read like a title.
func (t *Titler) Title(ctx context.Context, query, answer string) string {
	cleaned := cleanQuery(query)
	if utf8.RuneCountInString(cleaned) < 5 || t.generator == nil {
		return FallbackTitle(cleaned)
	}

	var b strings.Builder
	b.WriteString("Create a title for this conversation:\n\nUser: ")
	b.WriteString(cleaned)
	if answer = strings.TrimSpace(answer); answer != "" {
		b.WriteString("\n\nAssistant: ")
		b.WriteString(truncateWithEllipsis(answer, 150))
	}
	b.WriteString("\n\nTitle:")

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	resp, err := t.generator.Generate(callCtx, &ai.GenerationRequest{
		Message:     b.String(),
		Context:     titleInstructions,
		MaxLength:   titleMaxTokens,
		Temperature: titleTemperature,
	})
	if err != nil {
		t.logger.Warn("title generation failed, using fallback", "err", err)
		return FallbackTitle(cleaned)
	}

	// Only the first line counts
	text, _, _ := strings.Cut(strings.TrimSpace(resp.Response), "\n")
	title := cleanTitle(text)
	if !validTitle(title) {
		t.logger.Debug("generated title rejected, using fallback", "title", title)
		return FallbackTitle(cleaned)
	}
	return title
}

// FallbackTitle builds a title from the first key words of query.
func FallbackTitle(query string) string {
	words := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(query), ""))

	var keys []string
	for _, w := range words {
		if titleStopWords[w] || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		keys = append(keys, capitalize(w))
		if len(keys) == maxFallbackWords {
			break
		}
	}
	if len(keys) == 0 {
		return DefaultTitle
	}

	title := strings.Join(keys, " ")
	if utf8.RuneCountInString(title) > maxFallbackLen {
		title = string([]rune(title)[:maxFallbackLen-3]) + "..."
	}
	return title
}

func cleanQuery(query string) string {
	cleaned := strings.Join(strings.Fields(query), " ")
	return truncateWithEllipsis(cleaned, maxTitleQuery)
}

func cleanTitle(title string) string {
	title = titlePrefix.ReplaceAllString(strings.TrimSpace(title), "")
	title = titleSuffix.ReplaceAllString(title, "")
	title = titleQuotes.ReplaceAllString(title, "")
	title = trailingMarks.ReplaceAllString(title, "")

	words := strings.Fields(title)
	for i, w := range words {
		if i > 0 && i < len(words)-1 && minorWords[strings.ToLower(w)] {
			words[i] = strings.ToLower(w)
		} else {
			words[i] = capitalize(w)
		}
	}
	return strings.Join(words, " ")
}

func validTitle(title string) bool {
	n := len(strings.Fields(title))
	if n < 1 || n > maxTitleWords {
		return false
	}
	for _, p := range unwantedTitle {
		if p.MatchString(title) {
			return false
		}
	}
	return true
}

// capitalize upper-cases the first letter of word and lower-cases the rest.
func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}

func truncateWithEllipsis(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
