// Package metrics holds the Prometheus collectors for ingestion, fetch jobs and
// outbound searches, plus a small /metrics server.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	KeywordsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kwscout_keywords_ingested_total",
			Help: "Total number of keyword records created from uploads",
		},
	)

	FetchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_fetch_jobs_total",
			Help: "Fetch-and-parse job executions by outcome",
		},
		[]string{"outcome"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kwscout_search_duration_seconds",
			Help:    "Duration of outbound search requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	SearchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kwscout_search_bytes_total",
			Help: "Total bytes downloaded across all searches",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_proxy_failures_total",
			Help: "Total number of proxy failures during searches",
		},
		[]string{"proxy_url"},
	)

	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwscout_queue_jobs_total",
			Help: "Queue deliveries by handler result",
		},
		[]string{"result"},
	)
)

// Fetch job outcomes.
const (
	OutcomeFetched = "fetched"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
	// OutcomeInterrupted means the worker shut down mid-fetch; the keyword
	// stays pending for redelivery.
	OutcomeInterrupted = "interrupted"
)

// RecordSearch records one completed search response.
func RecordSearch(d time.Duration, bytes int) {
	SearchDuration.Observe(d.Seconds())
	SearchBytesTotal.Add(float64(bytes))
}

// RecordFetchJob counts one fetch job execution.
func RecordFetchJob(outcome string) {
	FetchJobsTotal.WithLabelValues(outcome).Inc()
}

// RecordQueueJob counts one delivery; err decides the result label.
func RecordQueueJob(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	QueueJobsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
