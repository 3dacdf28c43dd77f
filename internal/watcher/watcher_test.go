package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/docurl"
	"github.com/hyperjump/podsearch/internal/models"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

type recorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
	roots   []string
}

func (r *recorder) index(root, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, path)
	r.roots = append(r.roots, root)
}

func (r *recorder) remove(_, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *recorder) snapshot() (indexed, removed, roots []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...), append([]string(nil), r.removed...), append([]string(nil), r.roots...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(nil, []string{".txt"}, rec.index, rec.remove)
	startWatcher(t, w)

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_CreatesMissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	w := NewWatcher([]string{dir}, nil, nil, nil)
	startWatcher(t, w)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "cats")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{"txt"}, rec.index, rec.remove, WithDebounce(50*time.Millisecond))
	startWatcher(t, w)

	txt := filepath.Join(sub, "f.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(txt, []byte("hello"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "g.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, ".hidden.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		indexed, _, _ := rec.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(150 * time.Millisecond)

	indexed, _, roots := rec.snapshot()
	if len(indexed) != 1 || indexed[0] != txt {
		t.Errorf("indexed = %v, want [%s]", indexed, txt)
	}
	if roots[0] != dir {
		t.Errorf("root = %q, want %q", roots[0], dir)
	}
}

func TestWatcher_RemoveAndRename(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt"}, rec.index, rec.remove, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(b, filepath.Join(dir, "b.md")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		_, removed, _ := rec.snapshot()
		return len(removed) >= 2
	})
	_, removed, _ := rec.snapshot()
	seen := map[string]bool{}
	for _, p := range removed {
		seen[p] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("removed = %v, want %s and %s", removed, a, b)
	}
}

func TestWatcher_NewDirectoryIsSynced(t *testing.T) {
	dir := t.TempDir()
	staging := t.TempDir()
	theme := filepath.Join(staging, "birds")
	if err := os.MkdirAll(theme, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(theme, "owl.txt"), []byte("owl"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt"}, rec.index, rec.remove, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	if err := os.Rename(theme, filepath.Join(dir, "birds")); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "birds", "owl.txt")
	waitFor(t, func() bool {
		indexed, _, _ := rec.snapshot()
		for _, p := range indexed {
			if p == want {
				return true
			}
		}
		return false
	})
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cats"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"top.txt", "cats/tabby.txt", "cats/skip.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt"}, rec.index, nil)
	startWatcher(t, w)

	w.SyncExistingFiles()
	indexed, _, _ := rec.snapshot()
	if len(indexed) != 2 {
		t.Errorf("indexed = %v, want 2 files", indexed)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"/a/b.txt", []string{"txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"txt", "md"}, false},
		{"/a/b.pdf", nil, true},
		{"/a/.b.txt", nil, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

type fakeIndexer struct {
	mu      sync.Mutex
	files   map[string]string // path -> theme
	authors map[string]string
	deleted []string
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{files: map[string]string{}, authors: map[string]string{}}
}

func (f *fakeIndexer) IndexFile(_ context.Context, path, theme, contributor string) *models.IndexOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = theme
	f.authors[path] = contributor
	return &models.IndexOutcome{URL: docurl.FileURL(path), State: models.StateIndexed, Pod: theme}
}

func (f *fakeIndexer) DeleteURL(_ context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, u)
	if u == docurl.FileURL("/never/indexed.txt") {
		return apperrors.ErrNotFound
	}
	return nil
}

func (f *fakeIndexer) theme(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	th, ok := f.files[path]
	return th, ok
}

func TestInbox_IndexesByTheme(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cats", "deep"), 0755); err != nil {
		t.Fatal(err)
	}
	idx := newFakeIndexer()
	in := NewInbox(idx, &config.WatchConfig{
		Directories:  []string{dir},
		Extensions:   []string{"txt"},
		Contributor:  "alice",
		DefaultTheme: "misc",
	}, nil, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()

	nested := filepath.Join(dir, "cats", "deep", "tabby.txt")
	top := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(nested, []byte("a tabby cat"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(top, []byte("a note"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		_, a := idx.theme(nested)
		_, b := idx.theme(top)
		return a && b
	})
	if th, _ := idx.theme(nested); th != "cats" {
		t.Errorf("theme(nested) = %q, want cats", th)
	}
	if th, _ := idx.theme(top); th != "misc" {
		t.Errorf("theme(top) = %q, want misc", th)
	}
	idx.mu.Lock()
	author := idx.authors[nested]
	idx.mu.Unlock()
	if author != "alice" {
		t.Errorf("contributor = %q, want alice", author)
	}

	if err := os.Remove(nested); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		for _, u := range idx.deleted {
			if u == docurl.FileURL(nested) {
				return true
			}
		}
		return false
	})
}

func TestInbox_RemoveUnknownFileIsQuiet(t *testing.T) {
	idx := newFakeIndexer()
	in := NewInbox(idx, &config.WatchConfig{}, nil)
	in.remove("/never", "/never/indexed.txt")
	if len(idx.deleted) != 1 {
		t.Errorf("deleted = %v", idx.deleted)
	}
}
