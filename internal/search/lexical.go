package search

import (
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

var (
	wordTokenizer = unicode.NewUnicodeTokenizer()
	lowerFilter   = lowercase.NewLowerCaseFilter()
)

// words splits s on unicode word boundaries, dropping punctuation, and lower-cases
// each word.
func words(s string) map[string]struct{} {
	stream := lowerFilter.Filter(wordTokenizer.Tokenize([]byte(s)))
	set := make(map[string]struct{}, len(stream))
	for _, tok := range stream {
		set[string(tok.Term)] = struct{}{}
	}
	return set
}

// Overlap returns the share of distinct query words that also occur in text.
func Overlap(query, text string) float64 {
	q := words(query)
	if len(q) == 0 || text == "" {
		return 0
	}
	t := words(text)
	n := 0
	for w := range q {
		if _, ok := t[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(q))
}
