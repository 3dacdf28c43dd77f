package podstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/vector"
)

const (
	currentFile  = "CURRENT"
	matrixFile   = "matrix.msgpack"
	rowsFile     = "rows.msgpack"
	postingsFile = "postings.msgpack"
	genPrefix    = "gen-"
	trashPrefix  = ".trash-"
)

type postingEntry struct {
	Doc       int64 `msgpack:"d"`
	Positions []int `msgpack:"p"`
}

type postingList struct {
	Token int32          `msgpack:"t"`
	Docs  []postingEntry `msgpack:"d"`
}

func escape(s string) string {
	return url.PathEscape(s)
}

func (s *Store) podDir(key models.PodKey) string {
	return filepath.Join(s.dir, escape(key.Contributor), escape(key.Language), escape(key.Theme))
}

// writeGeneration serializes p into a fresh generation directory and returns its name.
func (s *Store) writeGeneration(p *Pod) (string, error) {
	dir := s.podDir(p.Key)
	gen := genPrefix + uuid.NewString()
	genDir := filepath.Join(dir, gen)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return "", fmt.Errorf("create generation: %w", err)
	}

	files := []struct {
		name  string
		value any
	}{
		{matrixFile, p.Matrix},
		{rowsFile, p.Rows},
		{postingsFile, encodePostings(p.Postings)},
	}
	for _, f := range files {
		if err := s.writeFile(filepath.Join(genDir, f.name), f.value); err != nil {
			os.RemoveAll(genDir)
			return "", err
		}
	}
	return gen, nil
}

func (s *Store) writeFile(path string, value any) error {
	if s.failWrite != nil {
		if err := s.failWrite(filepath.Base(path)); err != nil {
			return err
		}
	}
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// setCurrent atomically points the pod at gen.
func (s *Store) setCurrent(key models.PodKey, gen string) error {
	dir := s.podDir(key)
	if s.failWrite != nil {
		if err := s.failWrite(currentFile); err != nil {
			return err
		}
	}
	tmp := filepath.Join(dir, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", currentFile, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, currentFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	return nil
}

// persist writes p as a new generation and makes it current. The previous
// generation is left in place until the caller discards it.
func (s *Store) persist(p *Pod) error {
	gen, err := s.writeGeneration(p)
	if err != nil {
		return err
	}
	if err := s.setCurrent(p.Key, gen); err != nil {
		os.RemoveAll(filepath.Join(s.podDir(p.Key), gen))
		return err
	}
	p.generation = gen
	return nil
}

func (s *Store) discardGeneration(key models.PodKey, gen string) {
	if gen == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(s.podDir(key), gen)); err != nil {
		s.logger.Warn("Failed to remove old pod generation",
			zap.String("pod", key.String()), zap.String("generation", gen), zap.Error(err))
	}
}

// trash moves the pod directory aside so it can be restored or removed.
func (s *Store) trash(key models.PodKey) (string, error) {
	dir := s.podDir(key)
	aside := filepath.Join(filepath.Dir(dir), trashPrefix+filepath.Base(dir)+"-"+uuid.NewString())
	if err := os.Rename(dir, aside); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("move pod aside: %w", err)
	}
	return aside, nil
}

func (s *Store) restore(key models.PodKey, aside string) {
	if aside == "" {
		return
	}
	if err := os.Rename(aside, s.podDir(key)); err != nil {
		s.logger.Error("Failed to restore pod directory",
			zap.String("pod", key.String()), zap.String("aside", aside), zap.Error(err))
	}
}

func encodePostings(p Postings) []postingList {
	tokens := make([]int32, 0, len(p))
	for tok := range p {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	lists := make([]postingList, 0, len(tokens))
	for _, tok := range tokens {
		docs := p[tok]
		ids := make([]int64, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		list := postingList{Token: tok, Docs: make([]postingEntry, 0, len(ids))}
		for _, id := range ids {
			list.Docs = append(list.Docs, postingEntry{Doc: id, Positions: docs[id]})
		}
		lists = append(lists, list)
	}
	return lists
}

func decodePostings(lists []postingList) Postings {
	p := make(Postings, len(lists))
	for _, list := range lists {
		if len(list.Docs) == 0 {
			continue
		}
		docs := make(map[int64][]int, len(list.Docs))
		for _, e := range list.Docs {
			docs[e.Doc] = e.Positions
		}
		p[list.Token] = docs
	}
	return p
}

func readFile(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, value); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// loadPod reads the current generation of the pod stored in dir.
func loadPod(dir string, key models.PodKey) (*Pod, error) {
	raw, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		return nil, err
	}
	gen := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(gen, genPrefix) {
		return nil, fmt.Errorf("invalid %s entry %q", currentFile, gen)
	}
	genDir := filepath.Join(dir, gen)

	p := &Pod{Key: key, generation: gen}
	var lists []postingList
	if err := readFile(filepath.Join(genDir, matrixFile), &p.Matrix); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(genDir, rowsFile), &p.Rows); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(genDir, postingsFile), &lists); err != nil {
		return nil, err
	}
	if p.Matrix == nil {
		p.Matrix = []vector.Sparse{}
	}
	p.Postings = decodePostings(lists)
	return p, p.Check()
}

// sweep removes generations other than the current one and abandoned trash.
func sweep(dir, current string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), genPrefix) && e.Name() != current {
			os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
}

// scan walks <dir>/<contributor>/<language>/<theme> and loads every pod found.
func (s *Store) scan() error {
	contributors, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, c := range contributors {
		if !c.IsDir() || strings.HasPrefix(c.Name(), ".") {
			continue
		}
		langs, err := os.ReadDir(filepath.Join(s.dir, c.Name()))
		if err != nil {
			return err
		}
		for _, l := range langs {
			if !l.IsDir() || strings.HasPrefix(l.Name(), ".") {
				continue
			}
			themes, err := os.ReadDir(filepath.Join(s.dir, c.Name(), l.Name()))
			if err != nil {
				return err
			}
			for _, t := range themes {
				dir := filepath.Join(s.dir, c.Name(), l.Name(), t.Name())
				if strings.HasPrefix(t.Name(), trashPrefix) {
					os.RemoveAll(dir)
					continue
				}
				if !t.IsDir() {
					continue
				}
				key, err := unescapeKey(c.Name(), l.Name(), t.Name())
				if err != nil {
					return err
				}
				if _, err := os.Stat(filepath.Join(dir, currentFile)); os.IsNotExist(err) {
					// Creation stopped before the first generation became current.
					s.logger.Warn("Removing pod without current generation",
						zap.String("pod", key.String()), zap.String("dir", dir))
					if err := os.RemoveAll(dir); err != nil {
						return fmt.Errorf("remove abandoned pod %s: %w", key, err)
					}
					if err := s.catalog.DeletePod(context.Background(), key); err != nil {
						s.logger.Warn("Failed to remove catalog record of abandoned pod",
							zap.String("pod", key.String()), zap.Error(err))
					}
					continue
				}
				p, err := loadPod(dir, key)
				if err != nil {
					return fmt.Errorf("load pod %s: %w", key, err)
				}
				sweep(dir, p.generation)
				s.pods[key] = p
			}
		}
	}
	return nil
}

func unescapeKey(contributor, lang, theme string) (models.PodKey, error) {
	var key models.PodKey
	var err error
	if key.Contributor, err = url.PathUnescape(contributor); err != nil {
		return key, err
	}
	if key.Language, err = url.PathUnescape(lang); err != nil {
		return key, err
	}
	if key.Theme, err = url.PathUnescape(theme); err != nil {
		return key, err
	}
	return key, nil
}
