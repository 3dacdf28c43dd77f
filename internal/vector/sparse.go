// Package vector provides sparse vectors over the vocabulary and similarity helpers.
package vector

import (
	"sort"

	"github.com/hyperjump/podsearch/pkg/utils"
)

// Sparse is a vector stored as parallel index/value slices sorted by index.
// Zero values are never stored.
type Sparse struct {
	Indices []int32   `msgpack:"i" json:"indices"`
	Values  []float32 `msgpack:"v" json:"values"`
}

// FromMap builds a sorted sparse vector, dropping zeros.
func FromMap(m map[int32]float32) Sparse {
	idx := make([]int32, 0, len(m))
	for i, v := range m {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	vals := make([]float32, len(idx))
	for k, i := range idx {
		vals[k] = m[i]
	}
	return Sparse{Indices: idx, Values: vals}
}

// FromDense converts a dense vector.
func FromDense(d []float64) Sparse {
	var s Sparse
	for i, v := range d {
		if v != 0 {
			s.Indices = append(s.Indices, int32(i))
			s.Values = append(s.Values, float32(v))
		}
	}
	return s
}

// Dense expands s to size dimensions. Indices beyond size are ignored.
func (s Sparse) Dense(size int) []float64 {
	out := make([]float64, size)
	for k, i := range s.Indices {
		if int(i) < size {
			out[i] = float64(s.Values[k])
		}
	}
	return out
}

// Len returns the number of non-zero dimensions.
func (s Sparse) Len() int { return len(s.Indices) }

// IsZero reports whether s has no non-zero dimension.
func (s Sparse) IsZero() bool { return len(s.Indices) == 0 }

// Get returns the value at dimension i.
func (s Sparse) Get(i int32) float32 {
	k := sort.Search(len(s.Indices), func(k int) bool { return s.Indices[k] >= i })
	if k < len(s.Indices) && s.Indices[k] == i {
		return s.Values[k]
	}
	return 0
}

// Clone returns a deep copy.
func (s Sparse) Clone() Sparse {
	return Sparse{
		Indices: append([]int32(nil), s.Indices...),
		Values:  append([]float32(nil), s.Values...),
	}
}

// Normalize returns an L2-normalized copy. The zero vector stays zero.
func (s Sparse) Normalize() Sparse {
	c := s.Clone()
	utils.NormalizeL2(c.Values)
	return c
}

// Sum adds vectors dimension-wise.
func Sum(vs ...Sparse) Sparse {
	acc := make(map[int32]float32)
	for _, v := range vs {
		for k, i := range v.Indices {
			acc[i] += v.Values[k]
		}
	}
	return FromMap(acc)
}
