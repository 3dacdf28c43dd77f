package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/podsearch/internal/config"
	"github.com/hyperjump/podsearch/internal/extract"
	"github.com/hyperjump/podsearch/internal/indexer"
	"github.com/hyperjump/podsearch/internal/models"
	"github.com/hyperjump/podsearch/internal/podstore"
	"github.com/hyperjump/podsearch/internal/search"
	"github.com/hyperjump/podsearch/internal/storage"
	"github.com/hyperjump/podsearch/internal/vectorizer"
	"github.com/hyperjump/podsearch/internal/vocab/vocabtest"
)

func BenchmarkRank(b *testing.B) {
	results := make([]*models.SearchResult, 1000)
	for i := range results {
		results[i] = &models.SearchResult{
			URL:   fmt.Sprintf("https://h%d.example/%d", i%20, i%400),
			Score: float64(i%97) / 3,
		}
	}
	opts := search.RankOptions{Floor: 1, Max: 50}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = search.Rank(results, opts)
	}
}

func BenchmarkOverlap(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = search.Overlap("black cats in the house", "The black cat sleeps in a warm house")
	}
}

func BenchmarkVectorize(b *testing.B) {
	set := vectorizer.NewSet(vocabtest.Registry("en"), 5, 500)
	v, _ := set.For("en")
	text := "the black cat and the puppy play in the garden of the house with a guitar song"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.Vectorize(v.Tokenize(text), 0)
	}
}

func BenchmarkEngineSearch(b *testing.B) {
	dir := b.TempDir()
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer catalog.Close()
	pods, err := podstore.Open(filepath.Join(dir, "pods"), catalog)
	if err != nil {
		b.Fatal(err)
	}
	set := vectorizer.NewSet(vocabtest.Registry("en"), 5, 500)
	idx := indexer.NewIndexer(catalog, pods, set, nil, extract.NewExtractor(50))

	texts := []string{
		"the black cat in the house",
		"a puppy and a dog in the garden",
		"tomato soup recipe with bread",
		"guitar song of the music house",
		"water melon fruit in the garden",
	}
	themes := []string{"pets", "food", "music"}
	ctx := context.Background()
	var reqs []*models.IndexRequest
	for i := 0; i < 300; i++ {
		reqs = append(reqs, &models.IndexRequest{
			URL:         fmt.Sprintf("https://bench.example/%d", i),
			Text:        texts[i%len(texts)],
			Theme:       themes[i%len(themes)],
			Language:    "en",
			Contributor: "bench",
		})
	}
	idx.IndexBatch(ctx, reqs)

	engine := search.NewEngine(pods, catalog, set, &config.SearchConfig{
		MaxPods:         3,
		ScoreFloor:      1.0,
		MaxResults:      50,
		LexicalBonus:    10,
		ExpansionWeight: 0.5,
		PodWorkers:      4,
		SnippetWords:    50,
	})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.LocalSearch(ctx, "black cat house"); err != nil {
			b.Fatal(err)
		}
	}
}
