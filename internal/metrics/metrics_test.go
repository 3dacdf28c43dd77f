package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveSearch("local", 3, 10*time.Millisecond, nil)
	m.ObserveSearch("local", 0, time.Millisecond, nil)
	m.ObserveSearch("federated", 0, time.Millisecond, errors.New("boom"))
	m.ObserveIndex("indexed", "")
	m.ObserveIndex("rejected", "robots_disallowed")
	m.ObservePeer("search", time.Millisecond, nil)
	m.SetPods(map[string]int{"en": 2, "fr": 1})

	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("local", "hit")); got != 1 {
		t.Errorf("local hits = %v", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("local", "zero_result")); got != 1 {
		t.Errorf("local zero results = %v", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("federated", "error")); got != 1 {
		t.Errorf("federated errors = %v", got)
	}
	if got := testutil.ToFloat64(m.DocsIndexedTotal.WithLabelValues("rejected", "robots_disallowed")); got != 1 {
		t.Errorf("rejections = %v", got)
	}
	if got := testutil.ToFloat64(m.PodCount.WithLabelValues("en")); got != 2 {
		t.Errorf("en pods = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "federation_peer_requests_total") {
		t.Error("scrape output missing peer counter")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveSearch("local", 1, time.Millisecond, nil)
	m.ObserveIndex("indexed", "")
	m.ObservePeer("search", time.Millisecond, nil)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.SetPods(nil)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}
