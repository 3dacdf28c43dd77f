package extract

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// DetectLanguage returns the ISO 639-1 code of the language of text and whether
// the detection is reliable. An empty code means the language is undetectable.
func DetectLanguage(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391(), info.IsReliable()
}
