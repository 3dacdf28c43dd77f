package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/podsearch/internal/podstore"
)

func podThemes(pods []*podstore.Pod) []string {
	themes := make([]string, len(pods))
	for i, p := range pods {
		themes[i] = p.Key.Theme
	}
	return themes
}

func TestScorePods_PrefersConsistentPods(t *testing.T) {
	f := newPodFixture(t)
	f.add("pets", 1, "black cat")
	f.add("pets", 2, "cat house")
	f.add("kitchen", 3, "cat soup recipe")
	f.add("kitchen", 4, "soup bread")
	f.add("music", 5, "guitar song")

	all := f.store.Pods("en")
	require.Len(t, all, 3)
	words := f.query("cat soup", 0).ExpandedVectors

	assert.Equal(t, []string{"kitchen", "pets"}, podThemes(ScorePods(all, words, 3)))
	assert.Equal(t, []string{"kitchen"}, podThemes(ScorePods(all, words, 1)))
}

func TestScorePods_NoHitsSearchesEverything(t *testing.T) {
	f := newPodFixture(t)
	f.add("pets", 1, "black cat")
	f.add("music", 2, "guitar song")

	all := f.store.Pods("en")
	got := ScorePods(all, f.query("puppy", 0).ExpandedVectors, 1)
	assert.ElementsMatch(t, []string{"pets", "music"}, podThemes(got))
}

func TestScorePods_Empty(t *testing.T) {
	assert.Nil(t, ScorePods(nil, nil, 3))
}
