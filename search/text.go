package search

import (
	"strings"
	"unicode"
)

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "his": true, "her": true, "their": true,
}

// significantWords lowercases text, strips punctuation and drops stop words.
func significantWords(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if cleaned != "" && !stopWords[cleaned] {
			out = append(out, cleaned)
		}
	}
	return out
}

// containsAllWords reports whether every significant word of query appears
// in document. A query with no significant words never matches.
func containsAllWords(document string, query []string) bool {
	if len(query) == 0 {
		return false
	}
	docWords := make(map[string]bool)
	for _, w := range significantWords(document) {
		docWords[w] = true
	}
	for _, w := range query {
		if !docWords[w] {
			return false
		}
	}
	return true
}
