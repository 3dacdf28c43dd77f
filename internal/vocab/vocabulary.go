// Package vocab loads the read-only language resources: the subword vocabulary with
// log-probabilities, the subword neighbour table used for query expansion, and the
// subword tokenizer.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// WordBoundary prefixes the first subword of every word.
const WordBoundary = "▁"

// Entry is one vocabulary line.
type Entry struct {
	Token   string
	Logprob float64
}

// Vocabulary maps subword tokens to dense ids. Ids follow first-seen order.
type Vocabulary struct {
	tokens   []string
	ids      map[string]int
	logprobs []float64
}

// NewVocabulary builds a vocabulary. Empty and duplicate tokens are skipped.
func NewVocabulary(entries []Entry) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		if _, ok := v.ids[e.Token]; ok {
			continue
		}
		v.ids[e.Token] = len(v.tokens)
		v.tokens = append(v.tokens, e.Token)
		v.logprobs = append(v.logprobs, e.Logprob)
	}
	return v
}

// ReadVocabulary parses "token<TAB>logprob" lines.
func ReadVocabulary(r io.Reader) (*Vocabulary, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		parts := strings.SplitN(text, "\t", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("vocabulary line %d: expected token and logprob", line)
		}
		lp, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("vocabulary line %d: %w", line, err)
		}
		entries = append(entries, Entry{Token: parts[0], Logprob: lp})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	return NewVocabulary(entries), nil
}

// Size is the dimensionality of every document vector.
func (v *Vocabulary) Size() int { return len(v.tokens) }

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token for id, or "" if out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

// Logprob returns the log-probability of id.
func (v *Vocabulary) Logprob(id int) float64 {
	return v.logprobs[id]
}

// Weight returns (-logprob)^power, or 0 when the log-probability is not negative.
func (v *Vocabulary) Weight(id int, power float64) float64 {
	neg := -v.logprobs[id]
	if neg <= 0 {
		return 0
	}
	return math.Pow(neg, power)
}

// IsWordStart reports whether token begins a word.
func IsWordStart(token string) bool {
	return strings.HasPrefix(token, WordBoundary)
}

// DisplayLength is the rune length of token without the word boundary marker.
func DisplayLength(token string) int {
	return len([]rune(strings.TrimPrefix(token, WordBoundary)))
}
