package serp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/kwscout/internal/fingerprint"
	"github.com/FranksOps/kwscout/internal/scraper"
)

func newTestFetcher(t *testing.T) *scraper.Fetcher {
	t.Helper()
	f, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestNewGoogle_RequiresFetcher(t *testing.T) {
	if _, err := NewGoogle(GoogleConfig{}, nil); err == nil {
		t.Fatal("expected error for nil fetcher")
	}
}

func TestGoogle_SearchURL(t *testing.T) {
	g, err := NewGoogle(GoogleConfig{BaseURL: "https://search.example/", Region: "us"}, newTestFetcher(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := g.SearchURL("running shoes")
	want := "https://search.example/search?gl=us&hl=en&q=running+shoes"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestGoogle_Search(t *testing.T) {
	fixture := loadFixture(t, "google_results.html")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "Apple" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixture))
	}))
	defer ts.Close()

	g, err := NewGoogle(GoogleConfig{BaseURL: ts.URL}, newTestFetcher(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := g.Search(context.Background(), "Apple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), `id="tads"`) {
		t.Error("expected result page body")
	}

	parsed, err := Parse(string(resp.Body))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsed.AdCount() != 3 {
		t.Errorf("expected 3 ads, got %d", parsed.AdCount())
	}
}

func TestSearcherFunc(t *testing.T) {
	var s Searcher = SearcherFunc(func(_ context.Context, q string) (*Response, error) {
		return &Response{StatusCode: http.StatusTeapot, Body: []byte(q)}, nil
	})
	resp, err := s.Search(context.Background(), "x")
	if err != nil || resp.StatusCode != http.StatusTeapot || string(resp.Body) != "x" {
		t.Errorf("unexpected response %+v, %v", resp, err)
	}
}
