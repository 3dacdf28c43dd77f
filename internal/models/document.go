// Package models defines core data structures for pods, documents, queries, and search results.
package models

import (
	"fmt"
	"time"
)

// PodKey identifies a pod: one shard per (theme, language, contributor).
type PodKey struct {
	Theme       string `json:"theme"`
	Language    string `json:"language"`
	Contributor string `json:"contributor"`
}

// String returns the display name "theme.u.contributor" scoped by language.
func (k PodKey) String() string {
	return fmt.Sprintf("%s/%s.u.%s", k.Language, k.Theme, k.Contributor)
}

// Name returns the pod name as shown to users and peers.
func (k PodKey) Name() string {
	return k.Theme + ".u." + k.Contributor
}

// PodRecord is the catalog entry for a pod.
type PodRecord struct {
	Key       PodKey    `json:"key"`
	Documents int       `json:"documents"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the catalog entry for an indexed URL. ID is the DocToUrl id.
type Document struct {
	ID          int64     `json:"id" db:"id"`
	Contributor string    `json:"contributor" db:"contributor"`
	URL         string    `json:"url" db:"url"`
	Title       string    `json:"title" db:"title"`
	Snippet     string    `json:"snippet" db:"snippet"`
	Doctype     string    `json:"doctype" db:"doctype"`
	Notes       string    `json:"notes" db:"notes"`
	Theme       string    `json:"theme" db:"theme"`
	Language    string    `json:"language" db:"language"`
	Body        string    `json:"-" db:"body"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Pod returns the key of the pod holding the document.
func (d *Document) Pod() PodKey {
	return PodKey{Theme: d.Theme, Language: d.Language, Contributor: d.Contributor}
}

// IndexRequest is one item submitted for indexing. Exactly one of URL or Text is required;
// a request with Text and URL indexes the text under that URL without fetching.
type IndexRequest struct {
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Theme       string `json:"theme"`
	Language    string `json:"language,omitempty"`
	Note        string `json:"note,omitempty"`
	Contributor string `json:"contributor"`
}

// Validate checks required fields.
func (r *IndexRequest) Validate() error {
	if r.URL == "" && r.Text == "" {
		return fmt.Errorf("either url or text is required")
	}
	if r.Theme == "" {
		return fmt.Errorf("theme is required")
	}
	if r.Contributor == "" {
		return fmt.Errorf("contributor is required")
	}
	return nil
}

// IndexState is a step of the indexing pipeline.
type IndexState string

const (
	StateFetched    IndexState = "fetched"
	StateParsed     IndexState = "parsed"
	StateVectorized IndexState = "vectorized"
	StateStored     IndexState = "stored"
	StateIndexed    IndexState = "indexed"
	StateRejected   IndexState = "rejected"
)

// IndexOutcome reports what happened to one submitted item. Stage is the last
// step reached; for rejected items it is the step that failed.
type IndexOutcome struct {
	URL      string     `json:"url"`
	State    IndexState `json:"state"`
	Stage    IndexState `json:"stage,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	DocID    int64      `json:"doc_id,omitempty"`
	Pod      string     `json:"pod,omitempty"`
	Language string     `json:"language,omitempty"`
	Messages []string   `json:"messages,omitempty"`
	Err      error      `json:"-"`
}

// Indexed reports whether the item was stored.
func (o *IndexOutcome) Indexed() bool {
	return o.State == StateIndexed
}
