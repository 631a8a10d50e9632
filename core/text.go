package core

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Stop words to filter out of lexical matching
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "does": true, "about": true,
}

// Terms splits text into words, lowercases, trims punctuation, and removes stop words.
func Terms(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}*#`"))

		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// CharCount counts the characters (runes) of text.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// TermOverlap returns the fraction of query terms present in text, in [0, 1].
func TermOverlap(text string, queryTerms []string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}

	textTerms := make(map[string]bool)
	for _, term := range Terms(text) {
		textTerms[term] = true
	}

	hits := 0
	for _, term := range queryTerms {
		if textTerms[term] {
			hits++
		}
	}
	return float32(hits) / float32(len(queryTerms))
}

// Truncate shortens text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}

	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// DotProduct calculates the dot product of two vectors.
// For normalized vectors this is their cosine similarity.
func DotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
