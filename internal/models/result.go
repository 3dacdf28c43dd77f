package models

// InstanceInfo identifies a peer instance.
type InstanceInfo struct {
	URL          string `json:"url"`
	SiteName     string `json:"sitename"`
	SiteTopic    string `json:"site_topic,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// SearchResult is a single hit. Remote is set only for results merged from a peer.
type SearchResult struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Snippet     string        `json:"snippet"`
	Doctype     string        `json:"doctype"`
	Pod         string        `json:"pod"`
	Score       float64       `json:"score"`
	Contributor string        `json:"contributor"`
	Notes       string        `json:"notes"`
	Remote      *InstanceInfo `json:"instance,omitempty"`
}

// IsRemote reports whether the result came from a peer.
func (r *SearchResult) IsRemote() bool {
	return r.Remote != nil
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Language  string          `json:"language"`
	Doctype   string          `json:"doctype,omitempty"`
	Pods      []string        `json:"pods"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
}
