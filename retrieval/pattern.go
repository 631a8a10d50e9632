package retrieval

import (
	"regexp"
	"strings"

	"github.com/poiesic/docrag/core"
)

// referencePattern matches explicit references in a query, such as "step 3"
// or "section #2".
var referencePattern = regexp.MustCompile(`(?i)\b(step|phase|stage|section|part|item)\s*#?(\d+)\b`)

// markerPattern matches the start of any section in document content:
// a labelled reference or a numbered list item.
var markerPattern = regexp.MustCompile(`(?i)\b(?:step|phase|stage|section|part|item)\s*#?\d+\b|(?:^|\s)\d+[.)]\s`)

// reference is a structured reference parsed from a query.
type reference struct {
	label  string
	number string
}

// parseReference extracts the first structured reference of query.
func parseReference(query string) (reference, bool) {
	m := referencePattern.FindStringSubmatch(query)
	if m == nil {
		return reference{}, false
	}
	return reference{label: strings.ToLower(m[1]), number: strings.TrimLeft(m[2], "0")}, true
}

// find returns the byte range of the heading that introduces the referenced
// section, or -1 if content has none. A labelled heading ("Step 2") wins over
// a numbered list item ("2.").
func (ref reference) find(content string) (int, int) {
	number := ref.number
	if number == "" {
		number = "0"
	}

	labelled := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(ref.label) + `\s*#?0*` + number + `\b`)
	if loc := labelled.FindStringIndex(content); loc != nil {
		return loc[0], loc[1]
	}

	numbered := regexp.MustCompile(`(?:^|\s)(0*` + number + `[.)])\s`)
	if loc := numbered.FindStringSubmatchIndex(content); loc != nil {
		return loc[2], loc[3]
	}
	return -1, -1
}

// locate returns the referenced section of content: its heading plus the text
// up to the next section marker, looking at most lookahead characters ahead.
func (ref reference) locate(content string, lookahead int) (string, bool) {
	start, end := ref.find(content)
	if start < 0 {
		return "", false
	}

	window := core.Truncate(content[end:], lookahead)
	if loc := markerPattern.FindStringIndex(window); loc != nil {
		window = window[:loc[0]]
	}

	span := strings.TrimSpace(content[start:end] + window)
	return span, span != ""
}
