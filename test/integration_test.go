//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/config"
	"github.com/FranksOps/kwscout/internal/storage"
)

const owner = "owner-1"

// newSearchStub serves the saved result page for every query except
// "blocked", which gets Google's unusual traffic interstitial.
func newSearchStub(t *testing.T) (*httptest.Server, *int64) {
	t.Helper()
	fixture, err := os.ReadFile("../internal/serp/testdata/google_results.html")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("q") == "blocked" {
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, `<html><body><form id="captcha-form" action="/sorry/index">Our systems have detected unusual traffic from your computer network.</form></body></html>`)
			return
		}
		w.Write(fixture)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newApp(t *testing.T, baseURL string) *app.App {
	t.Helper()
	v := viper.New()
	v.Set("search.base_url", baseURL)
	v.Set("search.fingerprint", "go")
	v.Set("search.timeout", 5*time.Second)
	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	a, err := app.New(context.Background(), cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func upload(t *testing.T, a *app.App, content string) []string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "keywords.csv")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", owner)

	resp, err := a.Server().App.Test(req)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, raw)
	}

	var body struct {
		Data struct {
			IDs []string `json:"ids"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid upload response: %v", err)
	}
	return body.Data.IDs
}

func waitSettled(t *testing.T, a *app.App, ids []string) map[string]*storage.Keyword {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		out := make(map[string]*storage.Keyword, len(ids))
		for _, id := range ids {
			kw, err := a.Store.Find(context.Background(), id)
			if err != nil {
				t.Fatalf("find failed: %v", err)
			}
			if kw.FetchStatus != storage.StatusPending {
				out[kw.Name] = kw
			}
		}
		if len(out) == len(ids) {
			return out
		}
		if time.Now().After(deadline) {
			t.Fatalf("keywords still pending after deadline: %d of %d settled", len(out), len(ids))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIntegration_UploadFetchShow(t *testing.T) {
	stub, hits := newSearchStub(t)
	a := newApp(t, stub.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.RunWorkers(ctx) }()

	ids := upload(t, a, "apple\nblocked\niphone\n")
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}

	settled := waitSettled(t, a, ids)
	if got := atomic.LoadInt64(hits); got != 3 {
		t.Errorf("expected one search per keyword, got %d", got)
	}

	apple := settled["apple"]
	if apple.FetchStatus != storage.StatusFetched || apple.AdsTopCount != 3 || len(apple.ResultURLs) != 3 {
		t.Errorf("unexpected apple keyword %+v", apple)
	}
	if apple.FetchedAt == nil {
		t.Error("fetched keyword must carry fetched_at")
	}

	blocked := settled["blocked"]
	if blocked.FetchStatus != storage.StatusFailed || !strings.HasPrefix(blocked.FetchError, "blocked by") {
		t.Errorf("unexpected blocked keyword %+v", blocked)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keywords/"+apple.ID+"?adwords_url_contains=apple&word=store&match_at_least=1", nil)
	req.Header.Set("X-Owner-ID", owner)
	resp, err := a.Server().App.Test(req)
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			MatchingAdwordURLs []string `json:"matching_adword_urls"`
			MatchingResultURLs []string `json:"matching_result_urls"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid show response: %v", err)
	}
	if len(body.Data.MatchingAdwordURLs) != 3 {
		t.Errorf("expected 3 apple ads, got %v", body.Data.MatchingAdwordURLs)
	}
	if len(body.Data.MatchingResultURLs) != 1 || body.Data.MatchingResultURLs[0] != "https://www.apple.com/store" {
		t.Errorf("expected only the apple store result, got %v", body.Data.MatchingResultURLs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("workers returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("workers did not stop after cancel")
	}
}
