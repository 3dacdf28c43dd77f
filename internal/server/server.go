// Package server provides the HTTP API: the peer protocol other instances call and
// the local index, search and maintenance endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/indexer"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/search"
	"github.com/hyperjump/podsearch/internal/storage"
)

const maxRequestBytes = 8 << 20

// WatchService manages inbox directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Federation reports the configured peers and the last discovery problem per language.
type Federation interface {
	Configured() []string
	Err(lang string) error
}

// Server is the HTTP server for the podsearch API.
type Server struct {
	engine     *search.Engine
	indexer    *indexer.Indexer
	catalog    storage.Catalog
	config     *config.Config
	federation Federation
	watch      WatchService
	metrics    *metrics.Metrics
	logger     *zap.Logger
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithFederation reports peer status in /api/v1/status.
func WithFederation(f Federation) Option {
	return func(s *Server) { s.federation = f }
}

// WithWatch enables the inbox directory endpoints.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, idx *indexer.Indexer, catalog storage.Catalog, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		indexer: idx,
		catalog: catalog,
		config:  cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/languages", s.handleLanguages)
		r.Get("/signature/{lang}", s.handleSignature)
		r.Get("/identity", s.handleIdentity)
		r.Get("/search", s.handlePeerSearch)
		r.Get("/documents/content", s.handleContent)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/search", s.handleSearch)
			r.Post("/index", s.handleIndex)
			r.Delete("/documents", s.handleDeleteDocument)
			r.Get("/pods", s.handlePods)
			r.Post("/pods/rename", s.handleRenamePod)
			r.Delete("/pods", s.handleDeletePod)
			r.Get("/status", s.handleStatus)
			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})
	})
	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
