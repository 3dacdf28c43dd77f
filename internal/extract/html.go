package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minContent is the body length below which the structured extraction is
// considered to have missed the page text.
const minContent = 100

// HTML extracts the title, description and main text of a page. Navigation chrome,
// scripts and forms are dropped; headings, paragraphs and list items are kept.
func (e *Extractor) HTML(content []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := metaContent(doc, "meta[property='og:title']")
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	snippet := metaContent(doc,
		"meta[property='og:description']",
		"meta[name='description']",
	)

	body := doc.Find("body")
	body.Find("script, style, nav, header, footer, aside, iframe, noscript, form, button, svg").Remove()

	var parts []string
	body.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td").Each(func(_ int, s *goquery.Selection) {
		// nested matches are collected through their innermost element
		if s.Find("p, li, blockquote, pre, td").Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, " ")
	if len(text) < minContent {
		text = strings.Join(strings.Fields(body.Text()), " ")
	}

	return e.finish(&Document{Title: title, Body: text, Snippet: snippet}), nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if content, ok := doc.Find(selector).Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}
