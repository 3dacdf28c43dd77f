package search

import (
	"sort"

	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/vector"
)

// podScore is a pod's distance from the best per-word hit density. Lower is better.
type podScore struct {
	pod      *podstore.Pod
	distance float64
	hits     int
}

// ScorePods ranks pods by how consistently they contain rows similar to each query
// word. All rows are scanned as one flattened matrix with pod boundaries in bins.
// For every word vector the rows with non-zero cosine are counted per pod and divided
// by the pod size; each density is then scaled by the best density for that word, and
// a pod's score is its Euclidean distance from the all-ones vector.
//
// Pods without any hit are left out. If no pod has a hit, every pod is returned.
// maxPods <= 0 returns all pods with hits.
func ScorePods(pods []*podstore.Pod, words []vector.Sparse, maxPods int) []*podstore.Pod {
	if len(pods) == 0 {
		return nil
	}

	var rows []vector.Sparse
	bins := make([]int, len(pods)+1)
	for i, p := range pods {
		rows = append(rows, p.Matrix...)
		bins[i+1] = len(rows)
	}

	density := make([][]float64, len(pods))
	for i := range density {
		density[i] = make([]float64, len(words))
	}
	hits := make([]int, len(pods))
	for w, wv := range words {
		if wv.IsZero() {
			continue
		}
		for r, row := range rows {
			if vector.Cosine(wv, row) <= 0 {
				continue
			}
			p := sort.SearchInts(bins, r+1) - 1
			density[p][w]++
			hits[p]++
		}
	}

	best := make([]float64, len(words))
	for p, pod := range pods {
		for w := range words {
			if pod.Len() > 0 {
				density[p][w] /= float64(pod.Len())
			}
			if density[p][w] > best[w] {
				best[w] = density[p][w]
			}
		}
	}

	ones := make([]float64, len(words))
	for w := range ones {
		ones[w] = 1
	}
	var scored []podScore
	for p, pod := range pods {
		if hits[p] == 0 {
			continue
		}
		rel := make([]float64, len(words))
		for w := range words {
			if best[w] == 0 {
				rel[w] = 1
				continue
			}
			rel[w] = density[p][w] / best[w]
		}
		scored = append(scored, podScore{pod: pod, distance: vector.Euclidean(ones, rel), hits: hits[p]})
	}
	if len(scored) == 0 {
		return pods
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].hits > scored[j].hits
	})
	if maxPods > 0 && len(scored) > maxPods {
		scored = scored[:maxPods]
	}
	out := make([]*podstore.Pod, len(scored))
	for i, s := range scored {
		out[i] = s.pod
	}
	return out
}
