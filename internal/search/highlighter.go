package search

import (
	"strings"

	"github.com/hyperjump/podsearch/pkg/utils"
)

// Highlight shortens a snippet to maxWords words, appending "..." when it was cut.
func Highlight(snippet string, maxWords int) string {
	if maxWords <= 0 || len(strings.Fields(snippet)) <= maxWords {
		return snippet
	}
	return utils.FirstWords(snippet, maxWords) + "..."
}
