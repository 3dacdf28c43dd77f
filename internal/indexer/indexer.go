// Package indexer runs submitted items through fetch, parse, vectorize and store,
// and maintains indexed URLs and pods.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/extract"
	"github.com/hyperjump/podsearch/internal/fetch"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/storage"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
	"github.com/hyperjump/podsearch/pkg/utils"
)

// manualSnippetRunes is the snippet length of text contributions.
const manualSnippetRunes = 500

// Fetcher retrieves remote documents.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// Indexer indexes documents into the catalog and the pod store.
type Indexer struct {
	catalog     storage.Catalog
	pods        *podstore.Store
	vectorizers *vectorizer.Set
	fetcher     Fetcher
	extractor   *extract.Extractor
	workers     int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics records indexing outcomes.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithWorkers sets the batch indexing pool size.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	catalog storage.Catalog,
	pods *podstore.Store,
	vectorizers *vectorizer.Set,
	fetcher Fetcher,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		catalog:     catalog,
		pods:        pods,
		vectorizers: vectorizers,
		fetcher:     fetcher,
		extractor:   extractor,
		workers:     4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index runs one item through the pipeline. Failures are reported in the outcome,
// never as a panic or partial store.
func (idx *Indexer) Index(ctx context.Context, req *models.IndexRequest) *models.IndexOutcome {
	out := &models.IndexOutcome{URL: req.URL}
	if err := req.Validate(); err != nil {
		return idx.reject(out, models.StateFetched, "invalid_input", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
	}

	var doc *models.Document
	var parsed *extract.Document
	if req.Text != "" {
		doc, parsed = idx.manual(req)
		out.URL = doc.URL
		out.Stage = models.StateParsed
	} else {
		if _, err := idx.catalog.GetDocumentByURL(ctx, req.URL); err == nil {
			return idx.reject(out, models.StateFetched, "duplicate", apperrors.Newf(apperrors.ErrConflict, 409, "url already indexed: %s", req.URL))
		}
		res, err := idx.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return idx.reject(out, models.StateFetched, reasonOf(err), err)
		}
		out.Stage = models.StateFetched

		parsed, err = idx.parse(res)
		if err != nil {
			return idx.reject(out, models.StateParsed, "parse_failed", &apperrors.ParseError{URL: req.URL, Err: err})
		}
		out.Stage = models.StateParsed
		doc = &models.Document{
			URL:     req.URL,
			Title:   parsed.Title,
			Snippet: parsed.Snippet,
			Doctype: models.DoctypeURL,
			Notes:   req.Note,
		}
		if req.Title != "" {
			doc.Title = req.Title
		}
	}
	doc.Contributor = req.Contributor
	doc.Theme = req.Theme
	return idx.store(ctx, out, doc, parsed.Text(), req.Language)
}

func (idx *Indexer) manual(req *models.IndexRequest) (*models.Document, *extract.Document) {
	u := req.URL
	if u == "" {
		u = docurl.ContentURL(req.Text)
	}
	text := extract.RedactEmails(req.Text)
	title := req.Title
	if title == "" {
		title = utils.FirstWords(text, 10)
	}
	doc := &models.Document{
		URL:     u,
		Title:   title,
		Snippet: utils.Truncate(strings.Join(strings.Fields(text), " "), manualSnippetRunes),
		Doctype: models.DoctypeDoc,
		Notes:   req.Note,
		Body:    text,
	}
	return doc, &extract.Document{Title: req.Title, Body: text}
}

func (idx *Indexer) parse(res *fetch.Result) (*extract.Document, error) {
	if res.IsHTML() {
		return idx.extractor.HTML(res.Body)
	}
	name := res.URL
	if u, err := url.Parse(res.URL); err == nil {
		name = path.Base(u.Path)
	}
	return idx.extractor.PDF(res.Body, name)
}

// store resolves the language, vectorizes text and writes the catalog record and
// pod row. The catalog record is removed again when the pod insert fails.
func (idx *Indexer) store(ctx context.Context, out *models.IndexOutcome, doc *models.Document, text, lang string) *models.IndexOutcome {
	lang, err := idx.language(doc.URL, text, lang)
	if err != nil {
		return idx.reject(out, models.StateParsed, "language", err)
	}
	doc.Language = lang
	out.Language = lang
	out.Pod = doc.Pod().Name()

	v, _ := idx.vectorizers.For(lang)
	vec, tokens := v.Document(text)
	if vec.IsZero() {
		return idx.reject(out, models.StateVectorized, "empty_vector", &apperrors.VectorizeError{URL: doc.URL, Reason: "no weighted vocabulary tokens"})
	}
	out.Stage = models.StateVectorized

	if err := idx.catalog.CreateDocument(ctx, doc); err != nil {
		reason := "store_failed"
		if errors.Is(err, apperrors.ErrConflict) {
			reason = "duplicate"
		}
		return idx.reject(out, models.StateStored, reason, err)
	}
	if _, err := idx.pods.Insert(ctx, doc.Pod(), doc.ID, vec, v.Positions(tokens)); err != nil {
		if derr := idx.catalog.DeleteDocument(ctx, doc.ID); derr != nil {
			idx.logger.Error("failed to remove catalog record after pod insert failure",
				zap.String("url", doc.URL), zap.Int64("doc_id", doc.ID), zap.Error(derr))
		}
		return idx.reject(out, models.StateStored, "store_failed", err)
	}

	out.State = models.StateIndexed
	out.Stage = models.StateStored
	out.DocID = doc.ID
	out.Messages = append(out.Messages, fmt.Sprintf("indexed %s in pod %s (%s)", doc.URL, out.Pod, lang))
	idx.metrics.ObserveIndex(string(models.StateIndexed), "")
	idx.logger.Debug("document indexed",
		zap.String("url", doc.URL), zap.String("pod", doc.Pod().String()), zap.Int64("doc_id", doc.ID))
	return out
}

// language returns the requested language, or detects it. Detected languages that
// are not installed fall back to the default language.
func (idx *Indexer) language(u, text, requested string) (string, error) {
	reg := idx.vectorizers.Registry()
	if requested != "" {
		if !reg.Has(requested) {
			return "", apperrors.Newf(apperrors.ErrInvalidInput, 400, "language %q is not installed", requested)
		}
		return requested, nil
	}
	code, _ := extract.DetectLanguage(text)
	if code == "" {
		return "", &apperrors.ParseError{URL: u, Err: errors.New("language undetectable")}
	}
	if !reg.Has(code) {
		idx.logger.Info("detected language not installed, using default",
			zap.String("url", u), zap.String("detected", code), zap.String("default", reg.Default()))
		return reg.Default(), nil
	}
	return code, nil
}

func (idx *Indexer) reject(out *models.IndexOutcome, stage models.IndexState, reason string, err error) *models.IndexOutcome {
	out.State = models.StateRejected
	out.Stage = stage
	out.Reason = reason
	out.Err = err
	out.Messages = append(out.Messages, err.Error())
	idx.metrics.ObserveIndex(string(models.StateRejected), reason)
	idx.logger.Info("document rejected",
		zap.String("url", out.URL), zap.String("stage", string(stage)), zap.String("reason", reason), zap.Error(err))
	return out
}

func reasonOf(err error) string {
	var fe *apperrors.FetchError
	if errors.As(err, &fe) {
		return string(fe.Reason)
	}
	return "fetch_failed"
}

// IndexBatch indexes every request on a bounded worker pool and returns one outcome
// per request, in request order. A failing item never aborts the batch.
func (idx *Indexer) IndexBatch(ctx context.Context, reqs []*models.IndexRequest) []*models.IndexOutcome {
	outcomes := make([]*models.IndexOutcome, len(reqs))
	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		idx.logger.Warn("worker pool unavailable, indexing sequentially", zap.Error(err))
		for i, req := range reqs {
			outcomes[i] = idx.Index(ctx, req)
		}
		return outcomes
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, req := range reqs {
		i, req := i, req
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = idx.Index(ctx, req)
		}); err != nil {
			wg.Done()
			outcomes[i] = idx.reject(&models.IndexOutcome{URL: req.URL}, models.StateFetched, "pool", err)
		}
	}
	wg.Wait()
	return outcomes
}
