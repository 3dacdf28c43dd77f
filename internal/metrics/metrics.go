// Package metrics defines the Prometheus collectors of an instance and exposes a
// handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics records nothing, so components can
// be built without one in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       prometheus.Histogram
	SearchResultsCount  prometheus.Histogram
	DocsIndexedTotal    *prometheus.CounterVec
	PeerRequestsTotal   *prometheus.CounterVec
	PeerLatency         *prometheus.HistogramVec
	PodCount            *prometheus.GaugeVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by scope (local, federated) and outcome (hit, zero_result, error).",
			},
			[]string{"scope", "outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50},
			},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Documents submitted for indexing by final state and rejection reason.",
			},
			[]string{"state", "reason"},
		),
		PeerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federation_peer_requests_total",
				Help: "Calls to peer instances by operation and status (ok, error).",
			},
			[]string{"op", "status"},
		),
		PeerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federation_peer_latency_seconds",
				Help:    "Peer call latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"op"},
		),
		PodCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pods",
				Help: "Number of pods per language.",
			},
			[]string{"language"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.DocsIndexedTotal,
		m.PeerRequestsTotal,
		m.PeerLatency,
		m.PodCount,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSearch(scope string, results int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "hit"
	switch {
	case err != nil:
		outcome = "error"
	case results == 0:
		outcome = "zero_result"
	}
	m.SearchQueriesTotal.WithLabelValues(scope, outcome).Inc()
	if err == nil {
		m.SearchLatency.Observe(elapsed.Seconds())
		m.SearchResultsCount.Observe(float64(results))
	}
}

func (m *Metrics) ObserveIndex(state, reason string) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) ObservePeer(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PeerRequestsTotal.WithLabelValues(op, status).Inc()
	m.PeerLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetPods records the pod count of every language in counts.
func (m *Metrics) SetPods(counts map[string]int) {
	if m == nil {
		return
	}
	m.PodCount.Reset()
	for lang, n := range counts {
		m.PodCount.WithLabelValues(lang).Set(float64(n))
	}
}
