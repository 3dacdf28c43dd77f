package extract

import (
	"strings"
	"unicode/utf8"
)

// Plain returns content as the body, replacing invalid UTF-8 sequences with the
// replacement character. The first non-empty line becomes the title when name is empty.
func (e *Extractor) Plain(content []byte, name string) (*Document, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	text := string(content)
	title := name
	if title == "" {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				title = line
				break
			}
		}
	}
	return e.finish(&Document{Title: title, Body: text}), nil
}
