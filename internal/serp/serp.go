// Package serp queries a search engine for a keyword and extracts the ad and
// organic result URLs from the returned page.
package serp

import (
	"context"
	"net/http"
	"time"
)

// Response is the raw outcome of a single search request.
type Response struct {
	// URL is the final URL after redirects, when known.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Searcher performs one search for query. A non-2xx status is reported in
// Response, not as an error; errors mean no response was obtained.
type Searcher interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query string) (*Response, error)

func (f SearcherFunc) Search(ctx context.Context, query string) (*Response, error) {
	return f(ctx, query)
}
