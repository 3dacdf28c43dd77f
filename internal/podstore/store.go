package podstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// Catalog is the pod metadata store kept in step with the pod files. Its hooks run
// while the pod lock is held.
type Catalog interface {
	EnsurePod(ctx context.Context, key models.PodKey) error
	DeletePod(ctx context.Context, key models.PodKey) error
	RenamePod(ctx context.Context, key models.PodKey, newTheme string) error
}

// DocIndex resolves the document ids known for a contributor.
type DocIndex interface {
	DocToURL(ctx context.Context, contributor string) (map[int64]string, error)
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store holds every pod of the instance. Readers get immutable snapshots; writers
// for the same pod are serialized by a per-pod lock.
type Store struct {
	dir     string
	catalog Catalog
	logger  *zap.Logger

	mu   sync.RWMutex
	pods map[models.PodKey]*Pod

	locksMu sync.Mutex
	locks   map[models.PodKey]*podLock

	failWrite func(name string) error
}

// Open loads every pod persisted under dir.
func Open(dir string, catalog Catalog, opts ...Option) (*Store, error) {
	s := &Store{
		dir:     dir,
		catalog: catalog,
		logger:  zap.NewNop(),
		pods:    make(map[models.PodKey]*Pod),
		locks:   make(map[models.PodKey]*podLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pods directory: %w", err)
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("failed to load pods: %w", err)
	}
	s.logger.Info("Pod store opened", zap.String("dir", dir), zap.Int("pods", len(s.pods)))
	return s, nil
}

// ValidateKey rejects pod keys that cannot be stored.
func ValidateKey(key models.PodKey) error {
	parts := map[string]string{"theme": key.Theme, "language": key.Language, "contributor": key.Contributor}
	for name, v := range parts {
		if strings.TrimSpace(v) == "" {
			return apperrors.Newf(apperrors.ErrInvalidInput, 400, "pod %s is required", name)
		}
		if strings.HasPrefix(v, ".") {
			return apperrors.Newf(apperrors.ErrInvalidInput, 400, "pod %s must not start with a dot", name)
		}
	}
	return nil
}

// podLock serializes writers of one pod. Entries live only while someone holds or
// waits for them.
type podLock struct {
	mu   sync.Mutex
	refs int
}

// lockPod locks key and returns the matching unlock.
func (s *Store) lockPod(key models.PodKey) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &podLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}

// lockedPods returns the number of pod lock entries in use.
func (s *Store) lockedPods() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// Get returns the current snapshot of a pod.
func (s *Store) Get(key models.PodKey) (*Pod, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pods[key]
	return p, ok
}

// Pods returns the snapshots of every pod in lang, ordered by key. An empty lang
// returns all pods.
func (s *Store) Pods(lang string) []*Pod {
	s.mu.RLock()
	pods := make([]*Pod, 0, len(s.pods))
	for key, p := range s.pods {
		if lang == "" || key.Language == lang {
			pods = append(pods, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(pods, func(i, j int) bool { return pods[i].Key.String() < pods[j].Key.String() })
	return pods
}

// Summary returns the sum of the pod summaries for lang.
func (s *Store) Summary(lang string) vector.Sparse {
	pods := s.Pods(lang)
	sums := make([]vector.Sparse, 0, len(pods))
	for _, p := range pods {
		sums = append(sums, p.Summary())
	}
	return vector.Sum(sums...)
}

// Len returns the number of pods.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pods)
}

func (s *Store) publish(key models.PodKey, p *Pod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		delete(s.pods, key)
		return
	}
	s.pods[key] = p
}

// Insert appends a document to the pod, creating the pod if needed, and returns its
// row. Nothing is changed when any step fails.
func (s *Store) Insert(ctx context.Context, key models.PodKey, docID int64, vec vector.Sparse, positions map[int32][]int) (int, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	if vec.IsZero() {
		return 0, apperrors.New(apperrors.ErrInvalidInput, 400, "document vector is empty")
	}

	defer s.lockPod(key)()

	cur, exists := s.Get(key)
	if !exists {
		cur = newPod(key)
	}
	if _, dup := cur.Row(docID); dup {
		return 0, apperrors.Newf(apperrors.ErrConflict, 409, "document %d already in pod %s", docID, key)
	}

	next := cur.withInsert(docID, vec, positions)
	if err := next.Check(); err != nil {
		s.logger.Error("Pod invariant violated on insert", zap.String("pod", key.String()), zap.Error(err))
		return 0, &apperrors.StoreError{Pod: key.String(), Op: "insert", Err: fmt.Errorf("%w: %v", apperrors.ErrConsistency, err)}
	}

	if !exists {
		if err := s.catalog.EnsurePod(ctx, key); err != nil {
			return 0, &apperrors.StoreError{Pod: key.String(), Op: "insert", Err: err}
		}
	}
	if err := s.persist(next); err != nil {
		if !exists {
			if cerr := s.catalog.DeletePod(ctx, key); cerr != nil {
				s.logger.Error("Failed to roll back pod record", zap.String("pod", key.String()), zap.Error(cerr))
			}
			os.RemoveAll(s.podDir(key))
		}
		return 0, &apperrors.StoreError{Pod: key.String(), Op: "insert", Err: err}
	}

	s.publish(key, next)
	s.discardGeneration(key, cur.generation)
	return next.Len() - 1, nil
}

// Remove deletes a document from the pod. A pod left without documents is destroyed
// together with its catalog record, and destroyed is true.
func (s *Store) Remove(ctx context.Context, key models.PodKey, docID int64) (destroyed bool, err error) {
	defer s.lockPod(key)()

	cur, ok := s.Get(key)
	if !ok {
		return false, apperrors.Newf(apperrors.ErrNotFound, 404, "pod %s not found", key)
	}
	row, ok := cur.Row(docID)
	if !ok {
		return false, apperrors.Newf(apperrors.ErrNotFound, 404, "document %d not in pod %s", docID, key)
	}

	next := cur.withRemove(row)
	if err := next.Check(); err != nil {
		s.logger.Error("Pod invariant violated on remove", zap.String("pod", key.String()), zap.Error(err))
		return false, &apperrors.StoreError{Pod: key.String(), Op: "remove", Err: fmt.Errorf("%w: %v", apperrors.ErrConsistency, err)}
	}

	if next.Len() == 0 {
		if err := s.destroy(ctx, key); err != nil {
			return false, &apperrors.StoreError{Pod: key.String(), Op: "remove", Err: err}
		}
		s.logger.Info("Pod destroyed after last document removed", zap.String("pod", key.String()))
		return true, nil
	}

	if err := s.persist(next); err != nil {
		return false, &apperrors.StoreError{Pod: key.String(), Op: "remove", Err: err}
	}
	s.publish(key, next)
	s.discardGeneration(key, cur.generation)
	return false, nil
}

// destroy removes the pod files, catalog record and snapshot. Caller holds the pod lock.
func (s *Store) destroy(ctx context.Context, key models.PodKey) error {
	aside, err := s.trash(key)
	if err != nil {
		return err
	}
	if err := s.catalog.DeletePod(ctx, key); err != nil {
		s.restore(key, aside)
		return err
	}
	s.publish(key, nil)
	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			s.logger.Warn("Failed to remove pod files", zap.String("pod", key.String()), zap.Error(err))
		}
	}
	return nil
}

// Drop destroys a pod and returns the ids of the documents it held.
func (s *Store) Drop(ctx context.Context, key models.PodKey) ([]int64, error) {
	defer s.lockPod(key)()

	cur, ok := s.Get(key)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "pod %s not found", key)
	}
	if err := s.destroy(ctx, key); err != nil {
		return nil, &apperrors.StoreError{Pod: key.String(), Op: "drop", Err: err}
	}
	return cur.DocIDs(), nil
}

// Rename moves a pod to a new theme within the same language and contributor.
func (s *Store) Rename(ctx context.Context, key models.PodKey, newTheme string) error {
	target := models.PodKey{Theme: newTheme, Language: key.Language, Contributor: key.Contributor}
	if err := ValidateKey(target); err != nil {
		return err
	}
	if target == key {
		return nil
	}

	first, second := key, target
	if second.String() < first.String() {
		first, second = second, first
	}
	defer s.lockPod(first)()
	defer s.lockPod(second)()

	cur, ok := s.Get(key)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "pod %s not found", key)
	}
	if _, taken := s.Get(target); taken {
		return apperrors.Newf(apperrors.ErrConflict, 409, "pod %s already exists", target)
	}
	if _, err := os.Stat(s.podDir(target)); err == nil {
		return apperrors.Newf(apperrors.ErrConflict, 409, "pod %s already exists on disk", target)
	}

	if err := os.Rename(s.podDir(key), s.podDir(target)); err != nil {
		return &apperrors.StoreError{Pod: key.String(), Op: "rename", Err: err}
	}
	if err := s.catalog.RenamePod(ctx, key, newTheme); err != nil {
		if rerr := os.Rename(s.podDir(target), s.podDir(key)); rerr != nil {
			s.logger.Error("Failed to restore pod directory after rename", zap.String("pod", key.String()), zap.Error(rerr))
		}
		return &apperrors.StoreError{Pod: key.String(), Op: "rename", Err: err}
	}

	next := *cur
	next.Key = target
	s.mu.Lock()
	delete(s.pods, key)
	s.pods[target] = &next
	s.mu.Unlock()

	s.logger.Info("Pod renamed", zap.String("from", key.String()), zap.String("to", target.String()))
	return nil
}

// Verify checks every pod and that each matrix row refers to a document the
// catalog knows for the pod's contributor.
func (s *Store) Verify(ctx context.Context, docs DocIndex) error {
	known := make(map[string]map[int64]string)
	for _, p := range s.Pods("") {
		if err := p.Check(); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrConsistency, err)
		}
		urls, ok := known[p.Key.Contributor]
		if !ok {
			var err error
			urls, err = docs.DocToURL(ctx, p.Key.Contributor)
			if err != nil {
				return err
			}
			known[p.Key.Contributor] = urls
		}
		for _, id := range p.Rows {
			if _, ok := urls[id]; !ok {
				return fmt.Errorf("%w: pod %s row refers to unknown document %d", apperrors.ErrConsistency, p.Key, id)
			}
		}
	}
	return nil
}
