package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/podsearch/internal/models"
)

func testResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "black cat",
		Language:  "en",
		Pods:      []string{"pets.u.alice"},
		QueryTime: 42,
		Total:     2,
		Results: []*models.SearchResult{
			{URL: "https://pets.example/cat", Title: "Black cat", Snippet: "the black cat...", Pod: "pets.u.alice", Score: 12.5},
			{URL: "https://peer.example/x", Title: "Remote cat", Score: 3, Remote: &models.InstanceInfo{SiteName: "Peer"}},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, testResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "black cat" || decoded.QueryTime != 42 || len(decoded.Results) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Results[1].Remote == nil || decoded.Results[1].Remote.SiteName != "Peer" {
		t.Errorf("remote identity lost: %+v", decoded.Results[1])
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, testResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results in 42ms", "pets.u.alice", "1. Score: 12.5000", "Title: Black cat", "From: Peer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteIndexReport(t *testing.T) {
	outcomes := []*models.IndexOutcome{
		{URL: "https://a.example", State: models.StateIndexed, Pod: "pets.u.alice", Language: "en"},
		{URL: "https://b.example", State: models.StateRejected, Stage: models.StateFetched, Reason: "robots_disallowed",
			Messages: []string{"blocked"}, Err: errors.New("blocked")},
	}
	var buf bytes.Buffer
	if err := WriteIndexReport(&buf, outcomes, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "ok       https://a.example -> pets.u.alice (en)") {
		t.Errorf("missing indexed line:\n%s", out)
	}
	if !strings.Contains(out, "rejected https://b.example at fetched: robots_disallowed") {
		t.Errorf("missing rejected line:\n%s", out)
	}
	if !strings.Contains(out, "1 indexed, 1 rejected") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestWritePods(t *testing.T) {
	pods := []*models.PodRecord{{Key: models.PodKey{Theme: "pets", Language: "en", Contributor: "alice"}, Documents: 3}}
	var buf bytes.Buffer
	if err := WritePods(&buf, pods, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "pets.u.alice") || !strings.Contains(buf.String(), "3 docs") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"héllo", 2, "hé..."},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
