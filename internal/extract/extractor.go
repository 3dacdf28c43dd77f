// Package extract turns fetched or uploaded content into indexable text: a title,
// a body, and a snippet, with email addresses redacted.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/podsearch/pkg/utils"
)

// Document is the text extracted from one source.
type Document struct {
	Title   string
	Body    string
	Snippet string
}

// Text returns the title and body joined, the text a document is vectorised from.
func (d *Document) Text() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + " " + d.Body
}

// Extractor extracts documents from HTML, PDF and plain text.
type Extractor struct {
	snippetWords int
}

// NewExtractor returns an Extractor whose titles and snippets are cut to snippetWords words.
func NewExtractor(snippetWords int) *Extractor {
	if snippetWords <= 0 {
		snippetWords = 50
	}
	return &Extractor{snippetWords: snippetWords}
}

// Supported reports whether files with extension ext can be extracted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".html", ".htm", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// Extract reads the file at path and extracts it according to its extension.
func (e *Extractor) Extract(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext, filepath.Base(path))
}

// ExtractBytes extracts content based on the given extension. ext should include
// the leading dot (e.g. ".pdf"); name is used as a fallback title.
func (e *Extractor) ExtractBytes(content []byte, ext, name string) (*Document, error) {
	switch ext {
	case ".pdf":
		return e.PDF(content, name)
	case ".html", ".htm":
		return e.HTML(content)
	case ".txt", ".md", ".rst", "":
		return e.Plain(content, name)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

func (e *Extractor) finish(doc *Document) *Document {
	doc.Title = utils.FirstWords(RedactEmails(doc.Title), e.snippetWords)
	doc.Body = RedactEmails(doc.Body)
	if doc.Snippet == "" {
		doc.Snippet = utils.FirstWords(doc.Body, e.snippetWords)
	}
	doc.Snippet = utils.Truncate(RedactEmails(doc.Snippet), 1000)
	return doc
}
