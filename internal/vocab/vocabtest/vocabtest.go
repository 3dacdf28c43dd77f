// Package vocabtest provides small in-memory language resources for tests.
package vocabtest

import "github.com/hyperjump/podsearch/internal/vocab"

// Stop words carry a zero log-probability and therefore a zero weight.
var entries = []vocab.Entry{
	{Token: "▁the", Logprob: 0},
	{Token: "▁a", Logprob: 0},
	{Token: "▁of", Logprob: 0},
	{Token: "▁and", Logprob: 0},
	{Token: "▁cat", Logprob: -9},
	{Token: "▁cats", Logprob: -9.5},
	{Token: "▁kitten", Logprob: -10},
	{Token: "▁dog", Logprob: -9},
	{Token: "▁puppy", Logprob: -10},
	{Token: "▁pet", Logprob: -8.5},
	{Token: "▁water", Logprob: -8},
	{Token: "melon", Logprob: -10},
	{Token: "▁melon", Logprob: -10},
	{Token: "▁fruit", Logprob: -8.5},
	{Token: "▁garden", Logprob: -9},
	{Token: "▁soup", Logprob: -9},
	{Token: "▁recipe", Logprob: -9},
	{Token: "▁tomato", Logprob: -10},
	{Token: "▁black", Logprob: -8},
	{Token: "▁house", Logprob: -7.5},
	{Token: "▁music", Logprob: -8},
	{Token: "▁guitar", Logprob: -10},
	{Token: "▁song", Logprob: -8.5},
	{Token: "▁bread", Logprob: -9},
	{Token: "▁flour", Logprob: -10},
	{Token: "▁chat", Logprob: -9},
	{Token: "▁noir", Logprob: -9},
	{Token: "▁chien", Logprob: -9},
	{Token: "▁maison", Logprob: -8},
	{Token: "s", Logprob: -4},
}

var neighbours = map[string][]string{
	"▁kitten": {"▁cat", "▁cats", "▁puppy"},
	"▁water":  {"▁melon", "▁fruit", "s"},
	"▁guitar": {"▁music", "▁song"},
	"▁tomato": {"▁soup", "▁fruit"},
	"▁garden": {"▁fruit", "▁house"},
	"▁chien":  {"▁chat"},
}

// Resources returns resources for code using the shared fixture vocabulary and
// the greedy tokenizer.
func Resources(code string) *vocab.LanguageResources {
	v := vocab.NewVocabulary(entries)
	return vocab.NewLanguageResources(code, v, vocab.NewNeighborTable(neighbours), nil)
}

// Registry returns a registry with the given languages; the first is the default.
func Registry(codes ...string) *vocab.Registry {
	if len(codes) == 0 {
		codes = []string{"en"}
	}
	res := make([]*vocab.LanguageResources, 0, len(codes))
	for _, c := range codes {
		res = append(res, Resources(c))
	}
	reg, err := vocab.NewRegistry(codes[0], res...)
	if err != nil {
		panic(err)
	}
	return reg
}
