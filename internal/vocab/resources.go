package vocab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Files expected under <dir>/<lang>/.
const (
	VocabularyFile = "vocab.tsv"
	NeighborsFile  = "neighbours.tsv"
	ModelFile      = "tokenizer.model"
)

// LanguageResources is everything the vectorizer and scorers need for one language.
// It is built once at startup and never mutated.
type LanguageResources struct {
	Code      string
	Vocab     *Vocabulary
	Neighbors *NeighborTable
	Tokenizer Tokenizer
}

// NewLanguageResources assembles resources. A nil tokenizer selects the greedy tokenizer.
func NewLanguageResources(code string, v *Vocabulary, nns *NeighborTable, tok Tokenizer) *LanguageResources {
	if nns == nil {
		nns = NewNeighborTable(nil)
	}
	if tok == nil {
		tok = NewGreedyTokenizer(v)
	}
	return &LanguageResources{Code: code, Vocab: v, Neighbors: nns, Tokenizer: tok}
}

// LoadLanguage reads the resources for code from dir/code.
func LoadLanguage(dir, code string, logger *zap.Logger) (*LanguageResources, error) {
	langDir := filepath.Join(dir, code)
	f, err := os.Open(filepath.Join(langDir, VocabularyFile))
	if err != nil {
		return nil, fmt.Errorf("open vocabulary for %s: %w", code, err)
	}
	v, err := ReadVocabulary(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("language %s: %w", code, err)
	}

	nns := NewNeighborTable(nil)
	if nf, err := os.Open(filepath.Join(langDir, NeighborsFile)); err == nil {
		nns, err = ReadNeighbors(nf)
		nf.Close()
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", code, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open neighbours for %s: %w", code, err)
	}

	var tok Tokenizer
	modelPath := filepath.Join(langDir, ModelFile)
	if _, err := os.Stat(modelPath); err == nil {
		sp, err := NewSentencePieceTokenizer(modelPath)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", code, err)
		}
		tok = sp
	} else if logger != nil {
		logger.Info("no tokenizer model, using vocabulary tokenizer", zap.String("language", code))
	}

	if logger != nil {
		logger.Info("language loaded",
			zap.String("language", code),
			zap.Int("vocabulary", v.Size()),
			zap.Int("neighbours", nns.Len()),
		)
	}
	return NewLanguageResources(code, v, nns, tok), nil
}

// Registry holds the installed languages.
type Registry struct {
	langs map[string]*LanguageResources
	def   string
}

// NewRegistry builds a registry; def must be one of the given languages.
func NewRegistry(def string, resources ...*LanguageResources) (*Registry, error) {
	r := &Registry{langs: make(map[string]*LanguageResources, len(resources)), def: def}
	for _, res := range resources {
		r.langs[res.Code] = res
	}
	if _, ok := r.langs[def]; !ok {
		return nil, fmt.Errorf("default language %q is not installed", def)
	}
	return r, nil
}

// LoadRegistry loads every code from dir.
func LoadRegistry(dir string, codes []string, def string, logger *zap.Logger) (*Registry, error) {
	resources := make([]*LanguageResources, 0, len(codes))
	for _, code := range codes {
		res, err := LoadLanguage(dir, code, logger)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return NewRegistry(def, resources...)
}

// Get returns the resources for lang.
func (r *Registry) Get(lang string) (*LanguageResources, bool) {
	res, ok := r.langs[lang]
	return res, ok
}

// Has reports whether lang is installed.
func (r *Registry) Has(lang string) bool {
	_, ok := r.langs[lang]
	return ok
}

// Default returns the instance's default language code.
func (r *Registry) Default() string { return r.def }

// Languages returns installed codes, default first, then alphabetical.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.langs))
	for code := range r.langs {
		if code != r.def {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return append([]string{r.def}, out...)
}
