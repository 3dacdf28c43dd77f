package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Doctype values carried by query tokens.
const (
	DoctypeURL        = "url"
	DoctypeDoc        = "doc"
	DoctypeIndividual = "ind"
)

var languageSuffix = regexp.MustCompile(`^(.*) -(..)\s*$`)

// SearchQuery is a parsed query string.
type SearchQuery struct {
	Raw      string `json:"raw"`
	Query    string `json:"query"`
	Doctype  string `json:"doctype,omitempty"`
	Language string `json:"language"`
}

// ParseQuery extracts an optional trailing " -xx" language suffix and doctype tokens:
// "!type" sets the doctype, "?word" searches for word with doctype "ind", and a lone "/"
// lists documents. Language defaults to defaultLang.
func ParseQuery(raw, defaultLang string) (*SearchQuery, error) {
	q := &SearchQuery{Raw: raw, Language: defaultLang}
	text := raw
	if m := languageSuffix.FindStringSubmatch(raw); m != nil {
		text = m[1]
		q.Language = strings.ToLower(m[2])
	}
	var words []string
	for _, w := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(w, "?") && len(w) > 1:
			q.Doctype = DoctypeIndividual
			words = append(words, w[1:])
		case strings.HasPrefix(w, "!") && len(w) > 1:
			q.Doctype = w[1:]
		default:
			words = append(words, w)
		}
	}
	if strings.TrimSpace(text) == "/" {
		q.Doctype = DoctypeDoc
	}
	q.Query = strings.Join(words, " ")
	if q.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	return q, nil
}
