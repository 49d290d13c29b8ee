package serp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/FranksOps/kwscout/internal/scraper"
)

// DefaultGoogleBaseURL is the search host used when none is configured.
const DefaultGoogleBaseURL = "https://www.google.com"

// GoogleConfig configures the Google searcher.
type GoogleConfig struct {
	// BaseURL of the search host, without the /search path.
	BaseURL string
	// Language (hl) and Region (gl) pin the result page locale so the
	// selectors in Parse keep matching.
	Language string
	Region   string
}

// Google performs searches against Google's HTML result page.
type Google struct {
	cfg     GoogleConfig
	fetcher *scraper.Fetcher
}

// ensure Google implements Searcher
var _ Searcher = (*Google)(nil)

// NewGoogle creates a Google searcher that fetches through f.
func NewGoogle(cfg GoogleConfig, f *scraper.Fetcher) (*Google, error) {
	if f == nil {
		return nil, fmt.Errorf("google searcher requires a fetcher")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid search base url: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Google{cfg: cfg, fetcher: f}, nil
}

// SearchURL builds the result page URL for query.
func (g *Google) SearchURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("hl", g.cfg.Language)
	if g.cfg.Region != "" {
		v.Set("gl", g.cfg.Region)
	}
	return g.cfg.BaseURL + "/search?" + v.Encode()
}

func (g *Google) Search(ctx context.Context, query string) (*Response, error) {
	page, err := g.fetcher.Fetch(ctx, g.SearchURL(query))
	if err != nil {
		return nil, err
	}
	return &Response{
		URL:        page.URL,
		StatusCode: page.StatusCode,
		Header:     page.Header,
		Body:       page.Body,
		Duration:   page.Duration,
	}, nil
}
