package docurl

import (
	"strings"
	"testing"
)

func TestContentURL(t *testing.T) {
	u1 := ContentURL("some manual text")
	u2 := ContentURL("some manual text")
	if u1 != u2 {
		t.Errorf("same text should give same URL: %q vs %q", u1, u2)
	}
	if !strings.HasPrefix(u1, localScheme) {
		t.Errorf("URL should have prefix %q: got %q", localScheme, u1)
	}
	if ContentURL("other text") == u1 {
		t.Error("different text should give different URLs")
	}
}

func TestFileURL_normalized(t *testing.T) {
	u1 := FileURL("/foo/bar")
	u2 := FileURL("/foo/bar/")
	u3 := FileURL("/foo/./bar")
	if u1 != u2 || u1 != u3 {
		t.Errorf("paths should normalize: %q %q %q", u1, u2, u3)
	}
	if u1 != "file:///foo/bar" {
		t.Errorf("got %q", u1)
	}
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{ContentURL("x"), true},
		{FileURL("/tmp/a.txt"), true},
		{"/static/doc.pdf", true},
		{"https://example.org/page", false},
	}
	for _, tt := range tests {
		if got := IsLocal(tt.url); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestHost(t *testing.T) {
	if Host("https://Example.org/a/b") != "example.org" {
		t.Errorf("got %q", Host("https://Example.org/a/b"))
	}
	if Host(ContentURL("x")) != "local" {
		t.Errorf("pseudo-URL host: got %q", Host(ContentURL("x")))
	}
}

func TestRemote(t *testing.T) {
	local := ContentURL("x")
	got := Remote("https://peer.example/", local)
	if !strings.HasPrefix(got, "https://peer.example/api/documents/content?url=local%3A%2F%2F") {
		t.Errorf("got %q", got)
	}
	if Remote("https://peer.example", "https://example.org/a") != "https://example.org/a" {
		t.Error("web URLs should be unchanged")
	}
}
