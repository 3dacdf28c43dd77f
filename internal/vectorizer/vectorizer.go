// Package vectorizer turns text into sparse weighted vectors over a language's
// subword vocabulary, and builds per-word query vectors with neighbour expansion.
package vectorizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/podsearch/internal/vector"
	"github.com/hyperjump/podsearch/internal/vocab"
	"github.com/hyperjump/podsearch/pkg/utils"
)

const (
	minExpandLength   = 3 // subwords must be longer than this (without ▁) to be expanded
	minNeighborLength = 2
	minGroupToken     = 1
)

// Vectorizer is bound to one language. It is safe for concurrent use.
type Vectorizer struct {
	res   *vocab.LanguageResources
	power float64
	topK  int
	cache *queryCache
}

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithQueryCache caches QueryVectors results for up to size queries.
func WithQueryCache(size int) Option {
	return func(v *Vectorizer) {
		if size > 0 {
			v.cache = newQueryCache(size)
		}
	}
}

// New creates a vectorizer. power is the log-probability exponent; topK is the
// number of dimensions kept in document vectors (0 keeps all).
func New(res *vocab.LanguageResources, power float64, topK int, opts ...Option) *Vectorizer {
	v := &Vectorizer{res: res, power: power, topK: topK}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Language returns the language code.
func (v *Vectorizer) Language() string { return v.res.Code }

// Size returns the vector dimensionality.
func (v *Vectorizer) Size() int { return v.res.Vocab.Size() }

// Resources returns the language resources.
func (v *Vectorizer) Resources() *vocab.LanguageResources { return v.res }

// Tokenize lower-cases text and splits it into subword tokens.
func (v *Vectorizer) Tokenize(text string) []string {
	return v.res.Tokenizer.Tokenize(strings.ToLower(text))
}

// Vectorize counts known tokens, weights them by (-logprob)^power, keeps the
// topK heaviest dimensions (ties at the cut are kept) and L2-normalizes.
// Unknown tokens are dropped. topK <= 0 keeps all dimensions.
func (v *Vectorizer) Vectorize(tokens []string, topK int) vector.Sparse {
	counts := make(map[int32]int)
	for _, tok := range tokens {
		if id, ok := v.res.Vocab.ID(tok); ok {
			counts[int32(id)]++
		}
	}
	weights := make(map[int32]float64, len(counts))
	for id, c := range counts {
		if w := float64(c) * v.res.Vocab.Weight(int(id), v.power); w > 0 {
			weights[id] = w
		}
	}
	if topK > 0 && topK < len(weights) {
		sorted := make([]float64, 0, len(weights))
		for _, w := range weights {
			sorted = append(sorted, w)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		kth := sorted[topK-1]
		for id, w := range weights {
			if w < kth {
				delete(weights, id)
			}
		}
	}
	m := make(map[int32]float32, len(weights))
	for id, w := range weights {
		m[id] = float32(w)
	}
	s := vector.FromMap(m)
	utils.NormalizeL2(s.Values)
	return s
}

// Document tokenizes and vectorizes a document with the configured topK.
func (v *Vectorizer) Document(text string) (vector.Sparse, []string) {
	tokens := v.Tokenize(text)
	return v.Vectorize(tokens, v.topK), tokens
}

// Positions maps every known token id to its ordered positions in tokens.
// Unknown tokens are skipped but still occupy a position.
func (v *Vectorizer) Positions(tokens []string) map[int32][]int {
	pos := make(map[int32][]int)
	for i, tok := range tokens {
		if id, ok := v.res.Vocab.ID(tok); ok {
			pos[int32(id)] = append(pos[int32(id)], i)
		}
	}
	return pos
}

// Expand returns one token group per word: the word's subwords longer than one rune
// plus, for each subword longer than three runes, up to maxNeighbors of its neighbours
// (maxNeighbors <= 0 means no cap). Groups are de-duplicated in first-seen order.
func (v *Vectorizer) Expand(words [][]string, maxNeighbors int) [][]string {
	groups := make([][]string, 0, len(words))
	for _, w := range words {
		seen := make(map[string]bool)
		var group []string
		add := func(tok string) {
			if !seen[tok] {
				seen[tok] = true
				group = append(group, tok)
			}
		}
		for _, tok := range w {
			if len([]rune(tok)) > minGroupToken {
				add(tok)
			}
		}
		for _, tok := range w {
			if vocab.DisplayLength(tok) <= minExpandLength {
				continue
			}
			n := 0
			for _, nb := range v.res.Neighbors.Neighbors(tok) {
				if len([]rune(nb)) <= minNeighborLength {
					continue
				}
				if maxNeighbors > 0 && n >= maxNeighbors {
					break
				}
				add(nb)
				n++
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Query holds the tokenized and vectorized form of a query. Values returned by
// QueryVectors may be shared through the cache and must not be modified.
type Query struct {
	Text            string
	Words           [][]string
	Expanded        [][]string
	Vectors         []vector.Sparse
	ExpandedVectors []vector.Sparse
	Combined        vector.Sparse
}

// QueryVectors tokenizes each query word separately, expands the words, and builds
// one vector per word and per expanded group.
func (v *Vectorizer) QueryVectors(query string, maxNeighbors int) (*Query, error) {
	key := fmt.Sprintf("%d\x00%s", maxNeighbors, query)
	if v.cache != nil {
		if q, ok := v.cache.Get(key); ok {
			return q, nil
		}
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return nil, fmt.Errorf("query cannot be empty")
	}
	q := &Query{Text: query}
	for _, w := range fields {
		toks := v.Tokenize(w)
		q.Words = append(q.Words, toks)
		q.Vectors = append(q.Vectors, v.Vectorize(toks, len(toks)))
	}
	q.Expanded = v.Expand(q.Words, maxNeighbors)
	for _, g := range q.Expanded {
		q.ExpandedVectors = append(q.ExpandedVectors, v.Vectorize(g, len(g)))
	}
	q.Combined = vector.Sum(q.Vectors...).Normalize()
	if v.cache != nil {
		v.cache.Set(key, q)
	}
	return q, nil
}

// Set holds one vectorizer per installed language.
type Set struct {
	byLang map[string]*Vectorizer
	reg    *vocab.Registry
}

// NewSet builds vectorizers for every language in reg.
func NewSet(reg *vocab.Registry, power float64, topK int, opts ...Option) *Set {
	s := &Set{byLang: make(map[string]*Vectorizer), reg: reg}
	for _, code := range reg.Languages() {
		res, _ := reg.Get(code)
		s.byLang[code] = New(res, power, topK, opts...)
	}
	return s
}

// For returns the vectorizer for lang.
func (s *Set) For(lang string) (*Vectorizer, bool) {
	v, ok := s.byLang[lang]
	return v, ok
}

// Registry returns the language registry.
func (s *Set) Registry() *vocab.Registry { return s.reg }
