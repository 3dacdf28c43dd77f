package federation

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
)

// Score given to a legacy record whose title or snippet contains a query word.
const legacyMatchScore = 2

// Record is one search result as sent by a peer. Score is nil for peers that
// predate scored results.
type Record struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Snippet     string   `json:"snippet"`
	Doctype     string   `json:"doctype"`
	Pod         string   `json:"pod"`
	Score       *float64 `json:"score"`
	Contributor string   `json:"contributor"`
	Notes       string   `json:"notes"`
}

// legacyScore estimates a score from plain keyword containment.
func legacyScore(query string, r *Record) float64 {
	title := strings.ToLower(r.Title)
	snippet := strings.ToLower(r.Snippet)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(title, w) || strings.Contains(snippet, w) {
			return legacyMatchScore
		}
	}
	return 0
}

// MergeRemote adds a peer's records to results. Peer-local URLs are rewritten to
// retrieval URLs on the peer, every record is tagged with the peer identity, and
// records without a score get one from keyword containment. When a URL is already
// present the higher score wins.
func MergeRemote(results []*models.SearchResult, peer models.InstanceInfo, remote map[string]*Record, query string) []*models.SearchResult {
	index := make(map[string]int, len(results))
	for i, r := range results {
		index[r.URL] = i
	}
	info := peer
	for _, rec := range remote {
		score := legacyScore(query, rec)
		if rec.Score != nil {
			score = *rec.Score
		}
		res := &models.SearchResult{
			URL:         docurl.Remote(peer.URL, rec.URL),
			Title:       rec.Title,
			Snippet:     rec.Snippet,
			Doctype:     rec.Doctype,
			Pod:         rec.Pod,
			Score:       score,
			Contributor: rec.Contributor,
			Notes:       rec.Notes,
			Remote:      &info,
		}
		if i, ok := index[res.URL]; ok {
			if res.Score > results[i].Score {
				results[i] = res
			}
			continue
		}
		index[res.URL] = len(results)
		results = append(results, res)
	}
	return results
}

// Results implements search.Federator. It selects the peers whose signatures best
// match the query, queries them concurrently under the federation timeout and
// returns their merged records. Any failure only shrinks the contribution.
func (c *Client) Results(ctx context.Context, q *models.SearchQuery) []*models.SearchResult {
	v, ok := c.vectorizers.For(q.Language)
	if !ok {
		return nil
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	peers := c.registry.Peers(ctx, q.Language)
	if len(peers) == 0 {
		return nil
	}
	qv, err := v.QueryVectors(q.Query, c.cfg.ExpansionLength)
	if err != nil {
		return nil
	}
	selected := SelectPeers(vector.Sum(qv.Vectors...), peers, c.cfg.MaxPeers)
	if len(selected) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []*models.SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Workers > 0 {
		g.SetLimit(c.cfg.Workers)
	}
	for _, p := range selected {
		g.Go(func() error {
			records, err := c.Search(gctx, p.Info.URL, q.Raw)
			if err != nil {
				c.logger.Warn("peer search failed", zap.String("peer", p.Info.URL), zap.Error(err))
				return nil
			}
			mu.Lock()
			results = MergeRemote(results, p.Info, records, q.Query)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
