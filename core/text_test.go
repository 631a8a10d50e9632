package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"step", "2"}, Terms("What is Step 2?"))
	assert.Equal(t, []string{"heading"}, Terms("## Heading"))
	assert.Empty(t, Terms("the a an"))
	assert.Empty(t, Terms(""))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("   \n\t"))
	assert.Equal(t, 8, WordCount("Step 1. Do X. Step 2. Do Y."))
}

func TestCharCount(t *testing.T) {
	assert.Equal(t, 5, CharCount("héllo"))
	assert.Equal(t, 0, CharCount(""))
}

func TestTermOverlap(t *testing.T) {
	terms := Terms("install database")
	assert.Equal(t, float32(1), TermOverlap("How to install the database", terms))
	assert.Equal(t, float32(0.5), TermOverlap("Install the app", terms))
	assert.Equal(t, float32(0), TermOverlap("unrelated", terms))
	assert.Equal(t, float32(0), TermOverlap("anything", nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "héé", Truncate("héééé", 3))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var magnitude float64
	for _, x := range v {
		magnitude += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(magnitude), 1e-6)

	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
	assert.Empty(t, NormalizeVector(nil))
}

func TestDotProduct(t *testing.T) {
	assert.Equal(t, float32(11), DotProduct([]float32{1, 2}, []float32{3, 4}))
	// Mismatched lengths use the shorter vector
	assert.Equal(t, float32(3), DotProduct([]float32{1, 2, 5}, []float32{3}))
}
