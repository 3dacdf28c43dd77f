// Package federation discovers peer instances, picks the peers most likely to
// answer a query from their signatures, and merges their results.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// Peer API paths, relative to a peer base URL.
const (
	PathLanguages = "/api/languages"
	PathSignature = "/api/signature/"
	PathIdentity  = "/api/identity"
	PathSearch    = "/api/search"
)

// maxResponseBytes bounds any single peer response.
const maxResponseBytes = 32 << 20

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records peer call counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the HTTP client used for peer calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to peer instances.
type Client struct {
	http        *http.Client
	userAgent   string
	siteURL     string
	cfg         config.FederationConfig
	vectorizers *vectorizer.Set
	registry    *Registry
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewClient creates a federation client over the given peer base URLs.
func NewClient(cfg *config.FederationConfig, instance *config.InstanceConfig, peers []string, vectorizers *vectorizer.Set, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{},
		userAgent:   instance.UserAgent,
		siteURL:     instance.SiteURL,
		cfg:         *cfg,
		vectorizers: vectorizers,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = newRegistry(c, peers, cfg.RefreshInterval)
	return c
}

// Registry returns the cached peer registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// getJSON fetches base+path into v, bounded by the per-call timeout.
func (c *Client) getJSON(ctx context.Context, op, base, path string, v any) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObservePeer(op, time.Since(start), err) }()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return &apperrors.FederationError{Peer: base, Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperrors.FederationError{Peer: base, Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &apperrors.FederationError{Peer: base, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(v); err != nil {
		return &apperrors.FederationError{Peer: base, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// jsonList is the envelope used by the peer API.
type jsonList struct {
	List json.RawMessage `json:"json_list"`
}

// Languages returns the language codes a peer supports.
func (c *Client) Languages(ctx context.Context, peer string) ([]string, error) {
	var env jsonList
	if err := c.getJSON(ctx, "languages", peer, PathLanguages, &env); err != nil {
		return nil, err
	}
	var langs []string
	if err := json.Unmarshal(env.List, &langs); err != nil {
		return nil, &apperrors.FederationError{Peer: peer, Op: "languages", Err: err}
	}
	return langs, nil
}

// Search sends the raw query to a peer and returns its records keyed by URL.
// Current peers answer {"json_list": {url: record}}, older ones
// {"json_list": [x, {url: record}]}; a bare map is accepted too.
func (c *Client) Search(ctx context.Context, peer, query string) (map[string]*Record, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "search", peer, PathSearch+"?q="+url.QueryEscape(query), &raw); err != nil {
		return nil, err
	}
	records, err := decodeSearch(raw)
	if err != nil {
		return nil, &apperrors.FederationError{Peer: peer, Op: "search", Err: err}
	}
	return records, nil
}

func decodeSearch(raw json.RawMessage) (map[string]*Record, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	list, ok := top["json_list"]
	if !ok {
		return decodeRecords(raw)
	}
	var legacy []json.RawMessage
	if err := json.Unmarshal(list, &legacy); err == nil {
		if len(legacy) < 2 {
			return nil, errors.New("legacy result list without records")
		}
		return decodeRecords(legacy[1])
	}
	return decodeRecords(list)
}

func decodeRecords(raw json.RawMessage) (map[string]*Record, error) {
	var records map[string]*Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	for u, r := range records {
		if r == nil {
			delete(records, u)
			continue
		}
		r.URL = u
	}
	return records, nil
}
