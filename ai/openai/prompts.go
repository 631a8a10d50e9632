package openai

import (
	"regexp"
	"strings"
)

const systemPrompt = `You are a helpful assistant that answers questions about the user's documents.
Answer using only the document context below. Be concise and specific; when the question
refers to a numbered step or section, quote the instructions of that step.
If the context does not contain the answer, say that the documents do not cover it.`

// queryKind is the shape of answer a question expects.
type queryKind int

const (
	queryGeneral queryKind = iota
	queryQuantitative
	queryQualitative
	queryMixed
)

func (k queryKind) String() string {
	switch k {
	case queryQuantitative:
		return "quantitative"
	case queryQualitative:
		return "qualitative"
	case queryMixed:
		return "mixed"
	default:
		return "general"
	}
}

var (
	quantitativeTerms = wordPrefixes(
		"how much", "amount", "value", "cost", "price", "fee", "payment",
		"salary", "compensation", "severance", "benefit", "dollar",
		"figure", "sum", "total", "number", "quantity", "count",
		"percentage", "rate", "ratio", "average", "mean", "median",
		"minimum", "maximum", "range", "estimate", "calculation",
	)
	quantitativePatterns = regexp.MustCompile(`\bhow (many|much)\b` +
		`|\bwhat (is|was|are|were) the (cost|price|value|amount|total|sum)\b` +
		`|\b(calculate|compute|determine|find) the (value|amount|total|sum)\b`)

	qualitativeTerms = wordPrefixes(
		"describe", "explain", "elaborate", "summarize", "detail",
		"what is", "what are", "how does", "why is", "why are",
		"definition", "meaning", "purpose", "reason", "cause",
		"effect", "impact", "influence", "relationship", "difference",
		"similarity", "compare", "contrast", "advantage", "disadvantage",
		"benefit", "drawback", "feature", "characteristic", "property",
		"quality", "attribute", "aspect", "element", "component",
		"process", "procedure", "method", "technique", "approach",
		"strategy", "policy", "rule", "regulation", "guideline",
	)
	qualitativePatterns = regexp.MustCompile(`\b(what|who|where|when|why|how)\b` +
		`|\b(tell me about|provide information on|give details about)\b`)

	// Amounts like $6,000, 6000 or 12.5.
	numericValue = regexp.MustCompile(`\$?\d{1,3}(,\d{3})+(\.\d+)?|\$?\d+(\.\d+)?`)
	// "step 3" names a place in the document, not a quantity.
	ordinalReference = regexp.MustCompile(`\b(step|section|part|chapter|page|item)\s+#?\d+\b`)
)

// wordPrefixes matches any of the terms at the start of a word.
func wordPrefixes(terms ...string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = regexp.QuoteMeta(term)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)`)
}

func isQuantitative(q string) bool {
	if quantitativeTerms.MatchString(q) || quantitativePatterns.MatchString(q) {
		return true
	}
	return numericValue.MatchString(ordinalReference.ReplaceAllString(q, ""))
}

func isQualitative(q string) bool {
	return qualitativeTerms.MatchString(q) || qualitativePatterns.MatchString(q)
}

// classifyQuery decides whether a question asks for figures, for an
// explanation, for both, or for neither.
func classifyQuery(question string) queryKind {
	q := strings.ToLower(question)
	quantitative, qualitative := isQuantitative(q), isQualitative(q)
	switch {
	case quantitative && qualitative:
		return queryMixed
	case quantitative:
		return queryQuantitative
	case qualitative:
		return queryQualitative
	default:
		return queryGeneral
	}
}

const (
	quantitativeFocus = `The question asks for figures. Find the specific numbers, amounts and dates in the
context that answer it and state them exactly as the documents give them.`
	qualitativeFocus = `The question asks for an explanation. Describe the concepts and processes the context
covers in a well structured answer that addresses every part of the question.`
	generalFocus = `Pay attention to every detail of the context that bears on the question, including
any numbers or dates.`
)

var focusByKind = map[queryKind]string{
	queryGeneral:      generalFocus,
	queryQuantitative: quantitativeFocus,
	queryQualitative:  qualitativeFocus,
	queryMixed:        quantitativeFocus + "\n" + qualitativeFocus,
}

// buildSystemPrompt shapes the system prompt to the kind of question asked
// and appends the retrieved context.
func buildSystemPrompt(question, context string) string {
	focus := focusByKind[classifyQuery(question)]
	context = strings.TrimSpace(context)

	var b strings.Builder
	b.Grow(len(systemPrompt) + len(focus) + len(context) + 32)
	b.WriteString(systemPrompt)
	b.WriteString("\n")
	b.WriteString(focus)
	if context != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(context)
	}
	return b.String()
}
