package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/extract"
	"github.com/hyperjump/podsearch/internal/indexer"
	"github.com/hyperjump/podsearch/internal/metrics"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/search"
	"github.com/hyperjump/podsearch/internal/storage"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	"github.com/hyperjump/podsearch/internal/vocab/vocabtest"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type mockFederation struct{}

func (mockFederation) Configured() []string { return []string{"https://peer.example"} }

func (mockFederation) Err(lang string) error {
	if lang == "en" {
		return &apperrors.FederationError{Peer: "https://self.example", Op: "discover", Err: apperrors.ErrSelfFederation}
	}
	return nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *indexer.Indexer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Instance: config.InstanceConfig{SiteURL: "http://self.example", SiteName: "Self", SiteTopic: "pets"},
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "catalog.db"),
			PodsDir:      filepath.Join(dir, "pods"),
		},
		Search: config.SearchConfig{
			MaxPods:         3,
			ScoreFloor:      1.0,
			MaxResults:      50,
			LexicalBonus:    10,
			ExpansionWeight: 0.5,
			PodWorkers:      2,
			SnippetWords:    50,
		},
	}
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	pods, err := podstore.Open(cfg.Storage.PodsDir, catalog)
	if err != nil {
		t.Fatal(err)
	}
	set := vectorizer.NewSet(vocabtest.Registry("en"), 5, 500)
	idx := indexer.NewIndexer(catalog, pods, set, nil, extract.NewExtractor(50))
	engine := search.NewEngine(pods, catalog, set, &cfg.Search)
	return NewServer(engine, idx, catalog, cfg, opts...), idx
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func indexText(t *testing.T, idx *indexer.Indexer, u, title, text, theme string) {
	t.Helper()
	out := idx.Index(context.Background(), &models.IndexRequest{
		URL: u, Title: title, Text: text, Theme: theme, Language: "en", Contributor: "alice",
	})
	if !out.Indexed() {
		t.Fatalf("index %s: %v", u, out.Messages)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPeerProtocol(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Handler()
	indexText(t, idx, "https://pets.example/black-cat", "Black cat", "the black cat sleeps in the house", "pets")

	t.Run("languages", func(t *testing.T) {
		var body struct {
			List []string `json:"json_list"`
		}
		decode(t, do(t, h, http.MethodGet, "/api/languages", nil), &body)
		if len(body.List) != 1 || body.List[0] != "en" {
			t.Errorf("languages = %v", body.List)
		}
	})

	t.Run("signature", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/signature/en", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var sig []float64
		decode(t, rec, &sig)
		nonzero := 0
		for _, x := range sig {
			if x != 0 {
				nonzero++
			}
		}
		if len(sig) == 0 || nonzero == 0 {
			t.Errorf("signature has %d dims, %d non-zero", len(sig), nonzero)
		}
		if rec := do(t, h, http.MethodGet, "/api/signature/de", nil); rec.Code != http.StatusNotFound {
			t.Errorf("uninstalled language status = %d, want 404", rec.Code)
		}
	})

	t.Run("identity", func(t *testing.T) {
		var info models.InstanceInfo
		decode(t, do(t, h, http.MethodGet, "/api/identity", nil), &info)
		if info.URL != "http://self.example" || info.SiteName != "Self" || info.SiteTopic != "pets" {
			t.Errorf("identity = %+v", info)
		}
	})

	t.Run("search", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/search?q="+url.QueryEscape("black cat"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			List map[string]struct {
				Title string   `json:"title"`
				Score *float64 `json:"score"`
			} `json:"json_list"`
		}
		decode(t, rec, &body)
		got, ok := body.List["https://pets.example/black-cat"]
		if !ok {
			t.Fatalf("results = %v", body.List)
		}
		if got.Title != "Black cat" || got.Score == nil || *got.Score <= 1 {
			t.Errorf("record = %+v", got)
		}
		if rec := do(t, h, http.MethodGet, "/api/search", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("missing q status = %d", rec.Code)
		}
	})
}

func TestHandleContent(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Handler()
	out := idx.Index(context.Background(), &models.IndexRequest{
		Text: "a recipe for tomato soup", Theme: "food", Language: "en", Contributor: "alice",
	})
	if !out.Indexed() {
		t.Fatalf("index: %v", out.Messages)
	}

	rec := do(t, h, http.MethodGet, "/api/documents/content?url="+url.QueryEscape(out.URL), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "a recipe for tomato soup" {
		t.Errorf("body = %q", rec.Body.String())
	}

	indexText(t, idx, "https://pets.example/cat", "Cat", "black cat", "pets")
	rec = do(t, h, http.MethodGet, "/api/documents/content?url="+url.QueryEscape("https://pets.example/cat"), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("web document status = %d, want 404", rec.Code)
	}
}

func TestHandleIndex(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/index", models.IndexRequest{
		URL: "https://pets.example/cat", Text: "black cat", Theme: "pets", Language: "en", Contributor: "alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out models.IndexOutcome
	decode(t, rec, &out)
	if out.State != models.StateIndexed || out.Pod != "pets.u.alice" {
		t.Errorf("outcome = %+v", out)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/index", models.IndexRequest{Text: "black cat", Contributor: "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing theme status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/index", []models.IndexRequest{
		{URL: "https://pets.example/dog", Text: "a dog and a puppy", Theme: "pets", Language: "en", Contributor: "alice"},
		{Text: "no theme", Contributor: "alice"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d", rec.Code)
	}
	var outcomes []models.IndexOutcome
	decode(t, rec, &outcomes)
	if len(outcomes) != 2 || !outcomes[0].Indexed() || outcomes[1].Indexed() {
		t.Errorf("batch outcomes = %+v", outcomes)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/index", "{not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Handler()
	indexText(t, idx, "https://pets.example/black-cat", "Black cat", "the black cat sleeps in the house", "pets")

	rec := do(t, h, http.MethodGet, "/api/v1/search?local=true&q="+url.QueryEscape("black cat"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	decode(t, rec, &resp)
	if len(resp.Results) == 0 || resp.Results[0].URL != "https://pets.example/black-cat" {
		t.Errorf("results = %+v", resp.Results)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/search?q="+url.QueryEscape("cat -de"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("uninstalled language status = %d, want 400", rec.Code)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Handler()
	indexText(t, idx, "https://pets.example/cat", "Cat", "black cat", "pets")

	target := "/api/v1/documents?url=" + url.QueryEscape("https://pets.example/cat")
	if rec := do(t, h, http.MethodDelete, target, nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, target, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/documents", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url status = %d", rec.Code)
	}
}

func TestPodMaintenance(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Handler()
	indexText(t, idx, "https://pets.example/cat", "Cat", "black cat", "pets")
	indexText(t, idx, "https://pets.example/dog", "Dog", "a dog and a puppy", "pets")

	var list struct {
		Pods []models.PodRecord `json:"pods"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/pods", nil), &list)
	if len(list.Pods) != 1 || list.Pods[0].Key.Theme != "pets" {
		t.Fatalf("pods = %+v", list.Pods)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/pods/rename", map[string]string{
		"theme": "pets", "language": "en", "contributor": "alice", "new_theme": "animals",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/pods/rename", map[string]string{
		"theme": "missing", "language": "en", "contributor": "alice", "new_theme": "x",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("rename missing pod status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/pods?theme=animals&language=en&contributor=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	var deleted struct {
		Documents int `json:"documents"`
	}
	decode(t, rec, &deleted)
	if deleted.Documents != 2 {
		t.Errorf("documents deleted = %d, want 2", deleted.Documents)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/pods?theme=animals", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete key status = %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	m := metrics.New()
	s, idx := newTestServer(t, WithFederation(mockFederation{}), WithMetrics(m))
	h := s.Handler()
	indexText(t, idx, "https://pets.example/cat", "Cat", "black cat", "pets")

	rec := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Documents  int64 `json:"documents"`
		Pods       int   `json:"pods"`
		Disk       int64 `json:"disk_usage_bytes"`
		Federation struct {
			Peers  []string          `json:"peers"`
			Errors map[string]string `json:"errors"`
		} `json:"federation"`
	}
	decode(t, rec, &body)
	if body.Documents != 1 || body.Pods != 1 {
		t.Errorf("documents = %d, pods = %d", body.Documents, body.Pods)
	}
	if body.Disk <= 0 {
		t.Errorf("disk_usage_bytes = %d", body.Disk)
	}
	if len(body.Federation.Peers) != 1 || !strings.Contains(body.Federation.Errors["en"], "itself") {
		t.Errorf("federation = %+v", body.Federation)
	}

	metricsRec := do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(metricsRec.Body.String(), "http_requests_total") {
		t.Error("metrics output missing http_requests_total")
	}
	if !strings.Contains(metricsRec.Body.String(), `route="/api/v1/status"`) {
		t.Error("metrics output missing the status route")
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	watch := &mockWatchService{}
	s, _ := newTestServer(t, WithWatch(watch))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Directories []string `json:"directories"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/watch/directories", nil), &list)
	if len(list.Directories) != 1 || list.Directories[0] != dir {
		t.Errorf("directories = %v", list.Directories)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": filepath.Join(dir, "missing")}); rec.Code != http.StatusNotFound {
		t.Errorf("missing dir status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(dir), nil); rec.Code != http.StatusOK {
		t.Errorf("remove status = %d", rec.Code)
	}
	if len(watch.dirs) != 0 {
		t.Errorf("after remove: %v", watch.dirs)
	}
}

func TestHandleWatchDirectories_Disabled(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/watch/directories", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
