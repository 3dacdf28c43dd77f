package podstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

type fakeCatalog struct {
	mu        sync.Mutex
	pods      map[models.PodKey]bool
	docs      map[string]map[int64]string
	failNext  error
	ensures   int
	deletions int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{pods: make(map[models.PodKey]bool), docs: make(map[string]map[int64]string)}
}

func (c *fakeCatalog) take() error {
	err := c.failNext
	c.failNext = nil
	return err
}

func (c *fakeCatalog) EnsurePod(_ context.Context, key models.PodKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.take(); err != nil {
		return err
	}
	c.ensures++
	c.pods[key] = true
	return nil
}

func (c *fakeCatalog) DeletePod(_ context.Context, key models.PodKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.take(); err != nil {
		return err
	}
	c.deletions++
	delete(c.pods, key)
	return nil
}

func (c *fakeCatalog) RenamePod(_ context.Context, key models.PodKey, newTheme string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.take(); err != nil {
		return err
	}
	delete(c.pods, key)
	key.Theme = newTheme
	c.pods[key] = true
	return nil
}

func (c *fakeCatalog) DocToURL(_ context.Context, contributor string) (map[int64]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[contributor], nil
}

func (c *fakeCatalog) has(key models.PodKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pods[key]
}

var catsKey = models.PodKey{Theme: "cats", Language: "en", Contributor: "alice"}

func vec(entries map[int32]float32) vector.Sparse {
	return vector.FromMap(entries).Normalize()
}

func openStore(t *testing.T) (*Store, *fakeCatalog, string) {
	t.Helper()
	dir := t.TempDir()
	cat := newFakeCatalog()
	s, err := Open(dir, cat)
	require.NoError(t, err)
	return s, cat, dir
}

func insertDocs(t *testing.T, s *Store, key models.PodKey, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		v := vec(map[int32]float32{int32(id): 1, 100: 0.5})
		pos := map[int32][]int{int32(id): {0}, 100: {1, 3}}
		_, err := s.Insert(context.Background(), key, id, v, pos)
		require.NoError(t, err)
	}
}

func TestInsertCreatesPod(t *testing.T) {
	s, cat, dir := openStore(t)

	row, err := s.Insert(context.Background(), catsKey, 7, vec(map[int32]float32{1: 1}), map[int32][]int{1: {0, 2}})
	require.NoError(t, err)
	assert.Equal(t, 0, row)

	p, ok := s.Get(catsKey)
	require.True(t, ok)
	assert.Equal(t, []int64{7}, p.Rows)
	assert.Len(t, p.Matrix, 1)
	assert.Equal(t, []int{0, 2}, p.Positions(1, 7))
	assert.True(t, cat.has(catsKey))

	current, err := os.ReadFile(filepath.Join(dir, "alice", "en", "cats", currentFile))
	require.NoError(t, err)
	assert.Contains(t, string(current), genPrefix)

	row, err = s.Insert(context.Background(), catsKey, 8, vec(map[int32]float32{2: 1}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 1, cat.ensures)
}

func TestInsertRejectsDuplicateAndZeroVector(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 1)

	_, err := s.Insert(context.Background(), catsKey, 1, vec(map[int32]float32{3: 1}), nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = s.Insert(context.Background(), catsKey, 2, vector.Sparse{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	p, _ := s.Get(catsKey)
	assert.Equal(t, 1, p.Len())
}

func TestInsertRejectsInvalidKey(t *testing.T) {
	s, _, _ := openStore(t)
	_, err := s.Insert(context.Background(), models.PodKey{Theme: "..", Language: "en", Contributor: "a"}, 1, vec(map[int32]float32{1: 1}), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = s.Insert(context.Background(), models.PodKey{Theme: "x", Language: "", Contributor: "a"}, 1, vec(map[int32]float32{1: 1}), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRemoveMiddleShiftsRows(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 10, 11, 12)
	before, _ := s.Get(catsKey)
	last := before.Matrix[2]

	destroyed, err := s.Remove(context.Background(), catsKey, 11)
	require.NoError(t, err)
	assert.False(t, destroyed)

	p, _ := s.Get(catsKey)
	require.NoError(t, p.Check())
	assert.Equal(t, []int64{10, 12}, p.Rows)
	assert.Equal(t, last, p.Matrix[1])
	assert.Nil(t, p.DocsWith(11))
	assert.Len(t, p.DocsWith(100), 2)

	// the published snapshot seen before the write is untouched
	assert.Equal(t, []int64{10, 11, 12}, before.Rows)
	assert.Len(t, before.DocsWith(100), 3)
}

func TestRemoveLastDocumentDestroysPod(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1)

	destroyed, err := s.Remove(context.Background(), catsKey, 1)
	require.NoError(t, err)
	assert.True(t, destroyed)

	_, ok := s.Get(catsKey)
	assert.False(t, ok)
	assert.False(t, cat.has(catsKey))
	_, err = os.Stat(filepath.Join(dir, "alice", "en", "cats"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveMissing(t *testing.T) {
	s, _, _ := openStore(t)
	_, err := s.Remove(context.Background(), catsKey, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	insertDocs(t, s, catsKey, 1)
	_, err = s.Remove(context.Background(), catsKey, 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCascadeRollsBackWhenCatalogFails(t *testing.T) {
	s, cat, _ := openStore(t)
	insertDocs(t, s, catsKey, 1)

	cat.failNext = errors.New("catalog down")
	_, err := s.Remove(context.Background(), catsKey, 1)
	assert.ErrorIs(t, err, apperrors.ErrStore)

	p, ok := s.Get(catsKey)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, p.Rows)

	reopened, err := Open(s.dir, cat)
	require.NoError(t, err)
	_, ok = reopened.Get(catsKey)
	assert.True(t, ok)
}

func TestInsertRollsBackOnWriteFailure(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1)

	s.failWrite = func(name string) error {
		if name == postingsFile {
			return errors.New("disk full")
		}
		return nil
	}
	_, err := s.Insert(context.Background(), catsKey, 2, vec(map[int32]float32{5: 1}), nil)
	assert.ErrorIs(t, err, apperrors.ErrStore)

	p, _ := s.Get(catsKey)
	assert.Equal(t, []int64{1}, p.Rows)

	// a failed new pod leaves no catalog record behind
	other := models.PodKey{Theme: "dogs", Language: "en", Contributor: "alice"}
	_, err = s.Insert(context.Background(), other, 3, vec(map[int32]float32{5: 1}), nil)
	assert.Error(t, err)
	assert.False(t, cat.has(other))

	s.failWrite = nil
	reopened, err := Open(dir, cat)
	require.NoError(t, err)
	rp, ok := reopened.Get(catsKey)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, rp.Rows)
	_, ok = reopened.Get(other)
	assert.False(t, ok)
}

func TestPersistRoundTrip(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1, 2, 3)
	_, err := s.Remove(context.Background(), catsKey, 2)
	require.NoError(t, err)
	fr := models.PodKey{Theme: "chats", Language: "fr", Contributor: "bob"}
	insertDocs(t, s, fr, 9)

	reopened, err := Open(dir, cat)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	for _, key := range []models.PodKey{catsKey, fr} {
		want, _ := s.Get(key)
		got, ok := reopened.Get(key)
		require.True(t, ok, key.String())
		assert.Equal(t, want.Rows, got.Rows)
		assert.Equal(t, want.Matrix, got.Matrix)
		assert.Equal(t, want.Postings, got.Postings)
	}

	gens, err := filepath.Glob(filepath.Join(dir, "alice", "en", "cats", genPrefix+"*"))
	require.NoError(t, err)
	assert.Len(t, gens, 1)
}

func TestPodKeysWithSpecialCharacters(t *testing.T) {
	s, cat, dir := openStore(t)
	key := models.PodKey{Theme: "home/garden tips", Language: "en", Contributor: "a b"}
	insertDocs(t, s, key, 1)

	reopened, err := Open(dir, cat)
	require.NoError(t, err)
	_, ok := reopened.Get(key)
	assert.True(t, ok)
}

func TestRename(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1, 2)

	require.NoError(t, s.Rename(context.Background(), catsKey, "felines"))
	target := models.PodKey{Theme: "felines", Language: "en", Contributor: "alice"}

	_, ok := s.Get(catsKey)
	assert.False(t, ok)
	p, ok := s.Get(target)
	require.True(t, ok)
	assert.Equal(t, target, p.Key)
	assert.Equal(t, []int64{1, 2}, p.Rows)
	assert.True(t, cat.has(target))

	reopened, err := Open(dir, cat)
	require.NoError(t, err)
	_, ok = reopened.Get(target)
	assert.True(t, ok)
}

func TestRenameConflict(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 1)
	dogs := models.PodKey{Theme: "dogs", Language: "en", Contributor: "alice"}
	insertDocs(t, s, dogs, 2)

	err := s.Rename(context.Background(), catsKey, "dogs")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	err = s.Rename(context.Background(), models.PodKey{Theme: "none", Language: "en", Contributor: "alice"}, "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRenameRollsBackWhenCatalogFails(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1)

	cat.failNext = errors.New("locked")
	err := s.Rename(context.Background(), catsKey, "felines")
	assert.ErrorIs(t, err, apperrors.ErrStore)

	_, ok := s.Get(catsKey)
	assert.True(t, ok)
	_, err = os.Stat(filepath.Join(dir, "alice", "en", "cats", currentFile))
	assert.NoError(t, err)
}

func TestDrop(t *testing.T) {
	s, cat, _ := openStore(t)
	insertDocs(t, s, catsKey, 4, 5)

	ids, err := s.Drop(context.Background(), catsKey)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)
	assert.Equal(t, 0, s.Len())
	assert.False(t, cat.has(catsKey))

	_, err = s.Drop(context.Background(), catsKey)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPodsByLanguageAndSummary(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 1, 2)
	insertDocs(t, s, models.PodKey{Theme: "chats", Language: "fr", Contributor: "alice"}, 3)

	assert.Len(t, s.Pods("en"), 1)
	assert.Len(t, s.Pods("fr"), 1)
	assert.Len(t, s.Pods(""), 2)
	assert.Empty(t, s.Pods("de"))

	sum := s.Summary("en")
	assert.InDelta(t, 2*0.4472136, sum.Get(100), 1e-5)
	assert.Zero(t, sum.Get(3))
}

func TestVerify(t *testing.T) {
	s, cat, _ := openStore(t)
	insertDocs(t, s, catsKey, 1, 2)

	cat.docs["alice"] = map[int64]string{1: "https://a", 2: "https://b", 3: "https://c"}
	assert.NoError(t, s.Verify(context.Background(), cat))

	delete(cat.docs["alice"], 2)
	err := s.Verify(context.Background(), cat)
	assert.ErrorIs(t, err, apperrors.ErrConsistency)
}

func TestConcurrentInserts(t *testing.T) {
	s, _, _ := openStore(t)
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.Insert(context.Background(), catsKey, id, vec(map[int32]float32{int32(id): 1}), map[int32][]int{int32(id): {0}})
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	p, _ := s.Get(catsKey)
	assert.Equal(t, 20, p.Len())
	assert.NoError(t, p.Check())
	assert.Equal(t, 0, s.lockedPods())
}

func TestInsertThenRemoveRestoresPod(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 1, 2)
	before, _ := s.Get(catsKey)

	insertDocs(t, s, catsKey, 3)
	destroyed, err := s.Remove(context.Background(), catsKey, 3)
	require.NoError(t, err)
	require.False(t, destroyed)

	after, _ := s.Get(catsKey)
	assert.Equal(t, before.Rows, after.Rows)
	assert.Equal(t, before.Matrix, after.Matrix)
	assert.Equal(t, before.Postings, after.Postings)
}

func TestOpenDiscardsPodWithoutCurrentGeneration(t *testing.T) {
	s, cat, dir := openStore(t)
	insertDocs(t, s, catsKey, 1)

	dogs := models.PodKey{Theme: "dogs", Language: "en", Contributor: "alice"}
	require.NoError(t, cat.EnsurePod(context.Background(), dogs))
	abandoned := filepath.Join(dir, "alice", "en", "dogs")
	require.NoError(t, os.MkdirAll(filepath.Join(abandoned, genPrefix+"abandoned"), 0o755))

	reopened, err := Open(dir, cat)
	require.NoError(t, err)
	p, ok := reopened.Get(catsKey)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, p.Rows)
	_, ok = reopened.Get(dogs)
	assert.False(t, ok)
	assert.NoDirExists(t, abandoned)
	assert.False(t, cat.has(dogs))
}

func TestPodLocksReleasedAfterUse(t *testing.T) {
	s, _, _ := openStore(t)
	insertDocs(t, s, catsKey, 1, 2)
	_, err := s.Remove(context.Background(), catsKey, 1)
	require.NoError(t, err)
	require.NoError(t, s.Rename(context.Background(), catsKey, "kittens"))
	_, err = s.Drop(context.Background(), models.PodKey{Theme: "kittens", Language: "en", Contributor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, 0, s.lockedPods())
}

func TestRestoreFailureLogsPodAndLocation(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	dir := t.TempDir()
	s, err := Open(dir, newFakeCatalog(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	aside := filepath.Join(dir, "alice", "en", trashPrefix+"cats-gone")
	s.restore(catsKey, aside)

	entries := logs.FilterMessage("Failed to restore pod directory").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, catsKey.String(), fields["pod"])
	assert.Equal(t, aside, fields["aside"])
	assert.Contains(t, fields, "error")
}
