package search

// Result is a single search hit returned to the caller.
type Result struct {
	Key     string  `json:"key"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	Rank    float64 `json:"rank"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   string // entry type, empty = all
	FilterStatus string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over entries.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// EntryRecord is the data we index per entry.
type EntryRecord struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Status  string   `json:"status"`
	Labels  []string `json:"labels"`
	Rank    float64  `json:"rank"`
}
