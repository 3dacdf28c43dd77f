// Package podstore owns the per-pod index structures: the document vector matrix,
// the row to document id map, and the positional postings. It is the only code
// that writes them, and keeps the three consistent across insert, remove, rename
// and drop.
package podstore

import (
	"fmt"
	"sort"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
)

// Postings maps vocabulary id -> document id -> ordered token positions.
type Postings map[int32]map[int64][]int

// Pod is an immutable snapshot of one pod. Writers replace snapshots, they never
// modify one that has been published.
type Pod struct {
	Key      models.PodKey
	Matrix   []vector.Sparse
	Rows     []int64
	Postings Postings

	generation string
}

func newPod(key models.PodKey) *Pod {
	return &Pod{Key: key, Postings: make(Postings)}
}

// Len returns the number of documents (matrix rows).
func (p *Pod) Len() int { return len(p.Rows) }

// Row returns the matrix row of docID.
func (p *Pod) Row(docID int64) (int, bool) {
	for i, id := range p.Rows {
		if id == docID {
			return i, true
		}
	}
	return 0, false
}

// DocIDs returns the document ids in row order.
func (p *Pod) DocIDs() []int64 {
	return append([]int64(nil), p.Rows...)
}

// Summary returns the column sum of the matrix.
func (p *Pod) Summary() vector.Sparse {
	return vector.Sum(p.Matrix...)
}

// Positions returns the positions of token in docID.
func (p *Pod) Positions(token int32, docID int64) []int {
	return p.Postings[token][docID]
}

// DocsWith returns the documents whose postings contain token.
func (p *Pod) DocsWith(token int32) map[int64][]int {
	return p.Postings[token]
}

// Check verifies the structural invariants of the pod.
func (p *Pod) Check() error {
	if len(p.Matrix) != len(p.Rows) {
		return fmt.Errorf("pod %s: matrix has %d rows, row map has %d", p.Key, len(p.Matrix), len(p.Rows))
	}
	ids := make(map[int64]bool, len(p.Rows))
	for _, id := range p.Rows {
		if ids[id] {
			return fmt.Errorf("pod %s: document %d appears twice in row map", p.Key, id)
		}
		ids[id] = true
	}
	for tok, docs := range p.Postings {
		for id, pos := range docs {
			if !ids[id] {
				return fmt.Errorf("pod %s: postings for token %d reference unknown document %d", p.Key, tok, id)
			}
			if !sort.IntsAreSorted(pos) {
				return fmt.Errorf("pod %s: positions for token %d in document %d are not ordered", p.Key, tok, id)
			}
		}
	}
	return nil
}

// withInsert returns a copy of p with the document appended.
func (p *Pod) withInsert(docID int64, vec vector.Sparse, positions map[int32][]int) *Pod {
	next := &Pod{
		Key:      p.Key,
		Matrix:   append(append(make([]vector.Sparse, 0, len(p.Matrix)+1), p.Matrix...), vec.Clone()),
		Rows:     append(append(make([]int64, 0, len(p.Rows)+1), p.Rows...), docID),
		Postings: make(Postings, len(p.Postings)+len(positions)),
	}
	for tok, docs := range p.Postings {
		next.Postings[tok] = docs
	}
	for tok, pos := range positions {
		if len(pos) == 0 {
			continue
		}
		docs := make(map[int64][]int, len(next.Postings[tok])+1)
		for id, ps := range next.Postings[tok] {
			docs[id] = ps
		}
		sorted := append([]int(nil), pos...)
		sort.Ints(sorted)
		docs[docID] = sorted
		next.Postings[tok] = docs
	}
	return next
}

// withRemove returns a copy of p without the document at row. Later rows shift down
// by one and tokens left without documents are dropped from the postings.
func (p *Pod) withRemove(row int) *Pod {
	docID := p.Rows[row]
	next := &Pod{
		Key:      p.Key,
		Matrix:   make([]vector.Sparse, 0, len(p.Matrix)-1),
		Rows:     make([]int64, 0, len(p.Rows)-1),
		Postings: make(Postings, len(p.Postings)),
	}
	next.Matrix = append(append(next.Matrix, p.Matrix[:row]...), p.Matrix[row+1:]...)
	next.Rows = append(append(next.Rows, p.Rows[:row]...), p.Rows[row+1:]...)
	for tok, docs := range p.Postings {
		if _, ok := docs[docID]; !ok {
			next.Postings[tok] = docs
			continue
		}
		if len(docs) == 1 {
			continue
		}
		kept := make(map[int64][]int, len(docs)-1)
		for id, ps := range docs {
			if id != docID {
				kept[id] = ps
			}
		}
		next.Postings[tok] = kept
	}
	return next
}
