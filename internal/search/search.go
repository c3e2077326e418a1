// Package search indexes published posts in Meilisearch with a PostgreSQL
// fallback when the index is unavailable.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	AuthorName string `json:"authorName"`
	UserID     string `json:"userId"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// PostRecord is the data we index for a published post.
type PostRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	UserID      string   `json:"userId"`
	AuthorName  string   `json:"authorName"`
}

// Searcher can execute a full-text search over posts.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
