package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	KeywordsIngested.Add(2)
	RecordFetchJob(OutcomeFetched)
	RecordSearch(time.Second, 11)
	RecordQueueJob(nil)
	RecordQueueJob(errors.New("boom"))
	ProxyFailures.WithLabelValues("http://proxy.local:8080").Inc()

	output := scrape(t, ts.URL)

	for _, want := range []string{
		"kwscout_keywords_ingested_total",
		`kwscout_fetch_jobs_total{outcome="fetched"}`,
		"kwscout_search_duration_seconds_bucket",
		"kwscout_search_bytes_total",
		`kwscout_queue_jobs_total{result="ok"}`,
		`kwscout_queue_jobs_total{result="error"}`,
		`kwscout_proxy_failures_total{proxy_url="http://proxy.local:8080"}`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestMetricsServer(t *testing.T) {
	srv := Start(18931)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)
	defer srv.Stop(context.Background())

	if out := scrape(t, "http://localhost:18931/metrics"); !strings.Contains(out, "kwscout_search_bytes_total") {
		t.Error("expected kwscout collectors on /metrics")
	}
}

func TestStop_NilServer(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
