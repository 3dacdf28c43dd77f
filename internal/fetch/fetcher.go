// Package fetch retrieves documents over HTTP for indexing, honouring robots.txt
// and accepting only content types the extractors understand.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

const (
	MediaHTML  = "text/html"
	MediaXHTML = "application/xhtml+xml"
	MediaPDF   = "application/pdf"
)

var acceptedTypes = map[string]bool{
	MediaHTML:  true,
	MediaXHTML: true,
	MediaPDF:   true,
}

// Result is a successfully fetched document.
type Result struct {
	URL       string
	MediaType string
	Body      []byte
}

// IsHTML reports whether the document should be parsed as HTML.
func (r *Result) IsHTML() bool {
	return r.MediaType == MediaHTML || r.MediaType == MediaXHTML
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

func WithClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

type Fetcher struct {
	client      *http.Client
	robotsCache map[string]*robotstxt.RobotsData
	robotsMu    sync.RWMutex
	userAgent   string
	maxBody     int64
	logger      *zap.Logger
}

func New(userAgent string, timeout time.Duration, maxBody int64, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		robotsCache: make(map[string]*robotstxt.RobotsData),
		userAgent:   userAgent,
		maxBody:     maxBody,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch checks robots.txt, then downloads the document. Every rejection is a
// *errors.FetchError carrying its reason.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	u, err := url.Parse(urlStr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonInvalidURL, Err: err}
	}

	if !f.IsAllowed(ctx, u) {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonRobots}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonInvalidURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonStatus, Err: fmt.Errorf("status code %d", resp.StatusCode)}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !acceptedTypes[mediaType] {
		return nil, &apperrors.FetchError{
			URL:    urlStr,
			Reason: apperrors.ReasonUnsupportedType,
			Err:    fmt.Errorf("content type %q", resp.Header.Get("Content-Type")),
		}
	}

	var reader io.Reader = resp.Body
	if f.maxBody > 0 {
		reader = io.LimitReader(resp.Body, f.maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonNetwork, Err: err}
	}
	if f.maxBody > 0 && int64(len(body)) > f.maxBody {
		return nil, &apperrors.FetchError{URL: urlStr, Reason: apperrors.ReasonNetwork, Err: fmt.Errorf("body exceeds %d bytes", f.maxBody)}
	}

	return &Result{URL: resp.Request.URL.String(), MediaType: mediaType, Body: body}, nil
}

// IsAllowed reports whether robots.txt of the URL's host lets our user agent
// fetch its path. Hosts whose robots.txt cannot be retrieved are allowed.
func (f *Fetcher) IsAllowed(ctx context.Context, u *url.URL) bool {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	f.robotsMu.RLock()
	robots, exists := f.robotsCache[robotsURL]
	f.robotsMu.RUnlock()

	if !exists {
		robots = f.fetchRobotsTxt(ctx, robotsURL)
		f.robotsMu.Lock()
		f.robotsCache[robotsURL] = robots
		f.robotsMu.Unlock()
	}

	if robots == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return robots.TestAgent(path, f.userAgent)
}

func (f *Fetcher) fetchRobotsTxt(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("robots.txt unavailable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		f.logger.Debug("robots.txt unparsable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	return robots
}
