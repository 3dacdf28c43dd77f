// Package cli renders search results and index reports for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/podsearch/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (language %s", response.Total, response.QueryTime, response.Language)
	if len(response.Pods) > 0 {
		fmt.Fprintf(w, ", pods %s", strings.Join(response.Pods, ", "))
	}
	fmt.Fprint(w, ")\n\n")
	for i, r := range response.Results {
		writeOneResult(w, i+1, r)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%d. Score: %.4f | Pod: %s", rank, r.Score, r.Pod)
	if r.IsRemote() {
		fmt.Fprintf(w, " | From: %s", r.Remote.SiteName)
	}
	fmt.Fprintln(w)
	if r.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", r.Title)
	}
	fmt.Fprintf(w, "URL: %s\n", r.URL)
	if r.Snippet != "" {
		fmt.Fprintf(w, "\n%s\n", Truncate(r.Snippet, 200))
	}
	fmt.Fprintln(w)
}

// WriteIndexReport writes one line per outcome and a summary.
func WriteIndexReport(w io.Writer, outcomes []*models.IndexOutcome, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, outcomes)
	}
	indexed := 0
	for _, o := range outcomes {
		if o.Indexed() {
			indexed++
			fmt.Fprintf(w, "ok       %s -> %s (%s)\n", o.URL, o.Pod, o.Language)
			continue
		}
		fmt.Fprintf(w, "rejected %s at %s: %s\n", o.URL, o.Stage, o.Reason)
		for _, m := range o.Messages {
			fmt.Fprintf(w, "         %s\n", m)
		}
	}
	fmt.Fprintf(w, "\n%d indexed, %d rejected\n", indexed, len(outcomes)-indexed)
	return nil
}

// WritePods writes the pod list.
func WritePods(w io.Writer, pods []*models.PodRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, pods)
	}
	for _, p := range pods {
		fmt.Fprintf(w, "%-4s %-30s %6d docs\n", p.Key.Language, p.Key.Name(), p.Documents)
	}
	return nil
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
