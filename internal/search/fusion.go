// Package search scores pods and documents for a query and merges local and
// federated results into one ranking.
package search

import (
	"sort"

	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/models"
)

// Merge combines original-query scores with expanded-query scores: a document scored by
// both gets original + weight*expanded, one scored only by expansion gets weight*expanded.
func Merge(original, expanded map[int64]float64, weight float64) map[int64]float64 {
	merged := make(map[int64]float64, len(original)+len(expanded))
	for id, s := range original {
		merged[id] = s
	}
	for id, s := range expanded {
		merged[id] += weight * s
	}
	return merged
}

// RankOptions controls the final cut of the result list.
type RankOptions struct {
	Floor      float64 // results must score strictly above this
	Max        int     // 0 = no limit
	MaxPerHost int     // 0 = hosts counted but not capped
}

// Rank de-duplicates results by URL keeping the best score, sorts them by score
// descending and applies the floor and caps. It also returns how many results were
// kept per host.
func Rank(results []*models.SearchResult, opts RankOptions) ([]*models.SearchResult, map[string]int) {
	byURL := make(map[string]int, len(results))
	unique := make([]*models.SearchResult, 0, len(results))
	for _, r := range results {
		i, ok := byURL[r.URL]
		if !ok {
			byURL[r.URL] = len(unique)
			unique = append(unique, r)
			continue
		}
		if r.Score > unique[i].Score {
			unique[i] = r
		}
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Score != unique[j].Score {
			return unique[i].Score > unique[j].Score
		}
		return unique[i].URL < unique[j].URL
	})

	hosts := make(map[string]int)
	ranked := make([]*models.SearchResult, 0, len(unique))
	for _, r := range unique {
		if r.Score <= opts.Floor {
			break
		}
		if opts.Max > 0 && len(ranked) >= opts.Max {
			break
		}
		host := docurl.Host(r.URL)
		if opts.MaxPerHost > 0 && hosts[host] >= opts.MaxPerHost {
			continue
		}
		hosts[host]++
		ranked = append(ranked, r)
	}
	return ranked, hosts
}

// FilterDoctype keeps results of the given doctype. An empty doctype keeps all.
func FilterDoctype(results []*models.SearchResult, doctype string) []*models.SearchResult {
	if doctype == "" {
		return results
	}
	filtered := results[:0:0]
	for _, r := range results {
		if r.Doctype == doctype {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
