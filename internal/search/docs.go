package search

import (
	"math"
	"sort"

	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/vector"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	"github.com/hyperjump/podsearch/internal/vocab"
)

// DocWeights holds the document scoring parameters.
type DocWeights struct {
	LexicalBonus float64 // multiplier added for a non-zero title overlap
	MinScore     float64 // scores at or below this are dropped
}

// ScoreDocs scores every document of pod against q: cosine of the combined query
// vector with the document row, plus the positional score, plus the lexical overlap
// between the query and texts[docID] (with LexicalBonus times the overlap added when
// it is non-zero). NaN and scores at or below MinScore are dropped.
func ScoreDocs(pod *podstore.Pod, q *vectorizer.Query, voc *vocab.Vocabulary, texts map[int64]string, w DocWeights) map[int64]float64 {
	positional := PositionalScores(pod, q.Words, voc)
	scores := make(map[int64]float64)
	for row, id := range pod.Rows {
		s := vector.Cosine(q.Combined, pod.Matrix[row]) + positional[id]
		if ov := Overlap(q.Text, texts[id]); ov > 0 {
			s += ov + ov*w.LexicalBonus
		}
		if math.IsNaN(s) || s <= w.MinScore {
			continue
		}
		scores[id] = s
	}
	return scores
}

// PositionalScores returns, per document, the fraction of query words whose subwords
// occur as a consecutive chain in the document. Documents matching no word are absent.
func PositionalScores(pod *podstore.Pod, words [][]string, voc *vocab.Vocabulary) map[int64]float64 {
	scores := make(map[int64]float64)
	if len(words) == 0 {
		return scores
	}
	for _, word := range words {
		for doc := range matchWord(pod, word, voc) {
			scores[doc]++
		}
	}
	for doc := range scores {
		scores[doc] /= float64(len(words))
	}
	return scores
}

// chainLink is a known subword and its offset inside the word.
type chainLink struct {
	offset int
	id     int32
}

// matchWord returns the documents holding every known subword of word at positions
// start+offset for some start. Unknown subwords keep their offset but are not checked.
func matchWord(pod *podstore.Pod, word []string, voc *vocab.Vocabulary) map[int64]bool {
	var links []chainLink
	for k, tok := range word {
		if id, ok := voc.ID(tok); ok {
			links = append(links, chainLink{offset: k, id: int32(id)})
		}
	}
	if len(links) == 0 {
		return nil
	}
	matched := make(map[int64]bool)
	for doc, positions := range pod.DocsWith(links[0].id) {
		for _, p := range positions {
			if chainAt(pod, doc, links[1:], p-links[0].offset) {
				matched[doc] = true
				break
			}
		}
	}
	return matched
}

func chainAt(pod *podstore.Pod, doc int64, links []chainLink, start int) bool {
	for _, l := range links {
		positions := pod.Positions(l.id, doc)
		want := start + l.offset
		i := sort.SearchInts(positions, want)
		if i == len(positions) || positions[i] != want {
			return false
		}
	}
	return true
}

// ExpandedScores adds one per expanded group for each document containing any token
// of that group, at any position.
func ExpandedScores(pod *podstore.Pod, groups [][]string, voc *vocab.Vocabulary) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, group := range groups {
		seen := make(map[int64]bool)
		for _, tok := range group {
			id, ok := voc.ID(tok)
			if !ok {
				continue
			}
			for doc := range pod.DocsWith(int32(id)) {
				seen[doc] = true
			}
		}
		for doc := range seen {
			scores[doc]++
		}
	}
	return scores
}
