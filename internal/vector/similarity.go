package vector

import (
	"math"

	"github.com/hyperjump/podsearch/pkg/utils"
)

// Dot returns the inner product of two sparse vectors.
func Dot(a, b Sparse) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			dot += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return dot
}

// Norm returns the L2 norm of a vector.
func Norm(s Sparse) float64 {
	var sum float64
	for _, v := range s.Values {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b; zero-norm inputs score 0.
func Cosine(a, b Sparse) float64 {
	return utils.SanitizeScore(Dot(a, b) / (Norm(a) * Norm(b)))
}

// CosineOn returns the cosine similarity of q and b computed only over the
// dimensions where q is non-zero.
func CosineOn(q, b Sparse) float64 {
	var dot, nb float64
	i, j := 0, 0
	for i < len(q.Indices) && j < len(b.Indices) {
		switch {
		case q.Indices[i] == b.Indices[j]:
			dot += float64(q.Values[i]) * float64(b.Values[j])
			nb += float64(b.Values[j]) * float64(b.Values[j])
			i++
			j++
		case q.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return utils.SanitizeScore(dot / (Norm(q) * math.Sqrt(nb)))
}

// Euclidean returns the Euclidean distance between two dense vectors of equal length.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
