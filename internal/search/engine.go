package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/storage"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// Search scopes reported to metrics.
const (
	ScopeLocal     = "local"
	ScopeFederated = "federated"
)

// Federator returns results from peer instances. It must respect ctx and return an
// empty slice on any failure.
type Federator interface {
	Results(ctx context.Context, q *models.SearchQuery) []*models.SearchResult
}

// Engine answers queries from the local pods, optionally joined with peer results.
type Engine struct {
	pods         *podstore.Store
	catalog      storage.Catalog
	vectorizers  *vectorizer.Set
	config       config.SearchConfig
	maxNeighbors int
	federator    Federator
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records query counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFederator joins peer results into Search.
func WithFederator(f Federator) Option {
	return func(e *Engine) { e.federator = f }
}

// WithMaxNeighbors caps neighbour expansion per subword (0 = uncapped).
func WithMaxNeighbors(n int) Option {
	return func(e *Engine) { e.maxNeighbors = n }
}

// NewEngine creates a search engine over the given pods and catalog.
func NewEngine(pods *podstore.Store, catalog storage.Catalog, vectorizers *vectorizer.Set, cfg *config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		pods:        pods,
		catalog:     catalog,
		vectorizers: vectorizers,
		config:      *cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs the query on local pods and, when a federator is set, on peers.
func (e *Engine) Search(ctx context.Context, raw string) (*models.SearchResponse, error) {
	return e.run(ctx, raw, e.federator != nil)
}

// LocalSearch runs the query on local pods only. Peers call this through the
// peer API so that federated queries never fan out again.
func (e *Engine) LocalSearch(ctx context.Context, raw string) (*models.SearchResponse, error) {
	return e.run(ctx, raw, false)
}

func (e *Engine) run(ctx context.Context, raw string, federate bool) (resp *models.SearchResponse, err error) {
	start := time.Now()
	scope := ScopeLocal
	if federate {
		scope = ScopeFederated
	}
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		e.metrics.ObserveSearch(scope, n, time.Since(start), err)
	}()

	q, err := ProcessQuery(raw, e.vectorizers.Registry())
	if err != nil {
		return nil, err
	}

	remote := make(chan []*models.SearchResult, 1)
	if federate {
		go func() { remote <- e.federator.Results(ctx, q) }()
	} else {
		remote <- nil
	}

	local, pods, err := e.local(ctx, q)
	if err != nil {
		return nil, err
	}

	var results []*models.SearchResult
	results = append(results, local...)
	select {
	case r := <-remote:
		results = append(results, r...)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results = FilterDoctype(results, q.Doctype)
	ranked, hosts := Rank(results, RankOptions{
		Floor:      e.config.ScoreFloor,
		Max:        e.config.MaxResults,
		MaxPerHost: e.config.MaxPerHost,
	})
	for _, r := range ranked {
		r.Snippet = Highlight(r.Snippet, e.config.SnippetWords)
	}
	e.logger.Debug("search done",
		zap.String("query", q.Query),
		zap.String("language", q.Language),
		zap.Strings("pods", pods),
		zap.Int("candidates", len(results)),
		zap.Int("results", len(ranked)),
		zap.Any("hosts", hosts),
	)

	return &models.SearchResponse{
		Query:     q.Query,
		Language:  q.Language,
		Doctype:   q.Doctype,
		Pods:      pods,
		Results:   ranked,
		Total:     len(ranked),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// local scores the selected pods of the query language concurrently.
func (e *Engine) local(ctx context.Context, q *models.SearchQuery) ([]*models.SearchResult, []string, error) {
	v, ok := e.vectorizers.For(q.Language)
	if !ok {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "language %q is not installed", q.Language)
	}
	qv, err := v.QueryVectors(q.Query, e.maxNeighbors)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
	}

	selected := ScorePods(e.pods.Pods(q.Language), qv.ExpandedVectors, e.config.MaxPods)
	names := make([]string, len(selected))
	perPod := make([][]*models.SearchResult, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	if e.config.PodWorkers > 0 {
		g.SetLimit(e.config.PodWorkers)
	}
	for i, pod := range selected {
		names[i] = pod.Key.Name()
		g.Go(func() error {
			res, err := e.scorePod(gctx, pod, qv, v)
			if err != nil {
				return fmt.Errorf("score pod %s: %w", pod.Key, err)
			}
			perPod[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var results []*models.SearchResult
	for _, r := range perPod {
		results = append(results, r...)
	}
	return results, names, nil
}

func (e *Engine) scorePod(ctx context.Context, pod *podstore.Pod, qv *vectorizer.Query, v *vectorizer.Vectorizer) ([]*models.SearchResult, error) {
	docs, err := e.catalog.DocumentsByIDs(ctx, pod.DocIDs())
	if err != nil {
		return nil, err
	}
	texts := make(map[int64]string, len(docs))
	for id, d := range docs {
		texts[id] = d.Title
		if texts[id] == "" {
			texts[id] = d.Snippet
		}
	}

	voc := v.Resources().Vocab
	scores := ScoreDocs(pod, qv, voc, texts, DocWeights{
		LexicalBonus: e.config.LexicalBonus,
		MinScore:     e.config.MinDocScore,
	})
	expanded := ExpandedScores(pod, qv.Expanded, voc)
	merged := Merge(scores, expanded, e.config.ExpansionWeight)

	results := make([]*models.SearchResult, 0, len(merged))
	for id, score := range merged {
		d, ok := docs[id]
		if !ok {
			e.logger.Error("pod row without catalog record",
				zap.String("pod", pod.Key.String()),
				zap.Int64("doc_id", id),
			)
			continue
		}
		results = append(results, &models.SearchResult{
			URL:         d.URL,
			Title:       d.Title,
			Snippet:     d.Snippet,
			Doctype:     d.Doctype,
			Pod:         pod.Key.Name(),
			Score:       score,
			Contributor: d.Contributor,
			Notes:       d.Notes,
		})
	}
	return results, nil
}

// Signature returns the L2-normalised sum of all pod summaries of lang as a dense
// vector over the language vocabulary.
func (e *Engine) Signature(lang string) ([]float64, error) {
	v, ok := e.vectorizers.For(lang)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "language %q is not installed", lang)
	}
	return e.pods.Summary(lang).Normalize().Dense(v.Size()), nil
}

// Languages returns the installed language codes.
func (e *Engine) Languages() []string {
	return e.vectorizers.Registry().Languages()
}
