// Package jobs holds the background job handlers run by the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/kwscout/internal/bypass"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/queue"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/storage"
)

// FetchKeywordJob is the queue name of the fetch-and-parse job.
const FetchKeywordJob = "fetch_keyword"

// DefaultSearchTimeout bounds one search when no timeout is configured.
const DefaultSearchTimeout = 30 * time.Second

// FetchKeywordConfig configures the fetch-and-parse job.
type FetchKeywordConfig struct {
	Timeout   time.Duration
	Selectors serp.Selectors
	Detectors []bypass.Detector
}

// FetchKeyword searches for a pending keyword, parses the result page and
// records the outcome.
type FetchKeyword struct {
	store    storage.Backend
	searcher serp.Searcher
	cfg      FetchKeywordConfig
	logger   *slog.Logger
}

// ensure FetchKeyword implements queue.Handler
var _ queue.Handler = (*FetchKeyword)(nil)

// NewFetchKeyword creates the job. Zero config fields take defaults.
func NewFetchKeyword(store storage.Backend, searcher serp.Searcher, cfg FetchKeywordConfig, logger *slog.Logger) *FetchKeyword {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSearchTimeout
	}
	if cfg.Selectors == (serp.Selectors{}) {
		cfg.Selectors = serp.GoogleSelectors
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	return &FetchKeyword{
		store:    store,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger.With("job", FetchKeywordJob),
	}
}

// Handle runs the job for a queue delivery.
func (j *FetchKeyword) Handle(ctx context.Context, job queue.Job) error {
	return j.Run(ctx, job.KeywordID)
}

// Run fetches and parses one keyword. It is a no-op for missing or
// non-pending keywords, so redelivery is harmless. Search and parse failures
// are recorded on the keyword. Storage errors are returned, and so is
// cancellation of ctx, which leaves the keyword pending.
func (j *FetchKeyword) Run(ctx context.Context, keywordID string) error {
	log := j.logger.With("keyword_id", keywordID)

	kw, err := j.store.Find(ctx, keywordID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("keyword not found, skipping")
		metrics.RecordFetchJob(metrics.OutcomeSkipped)
		return nil
	}
	if err != nil {
		metrics.RecordFetchJob(metrics.OutcomeError)
		return fmt.Errorf("failed to load keyword %s: %w", keywordID, err)
	}
	if kw.FetchStatus != storage.StatusPending {
		log.Debug("keyword already processed, skipping", "status", kw.FetchStatus)
		metrics.RecordFetchJob(metrics.OutcomeSkipped)
		return nil
	}

	outcome := j.search(ctx, kw.Name)
	if err := ctx.Err(); err != nil {
		// Only the job's own timeout is a fetch failure.
		log.Warn("keyword fetch interrupted, leaving pending", "err", err)
		metrics.RecordFetchJob(metrics.OutcomeInterrupted)
		return fmt.Errorf("fetch of keyword %s interrupted: %w", keywordID, err)
	}
	if outcome.Status == storage.StatusFailed {
		log.Warn("keyword fetch failed", "name", kw.Name, "reason", outcome.Error)
	} else {
		log.Info("keyword fetched", "name", kw.Name, "ads", outcome.AdCount(), "results", len(outcome.ResultURLs))
	}

	err = j.store.Update(ctx, keywordID, outcome)
	switch {
	case errors.Is(err, storage.ErrNotPending), errors.Is(err, storage.ErrNotFound):
		// A duplicate delivery finished first.
		log.Info("keyword changed during fetch, discarding outcome", "err", err)
		metrics.RecordFetchJob(metrics.OutcomeSkipped)
		return nil
	case err != nil:
		metrics.RecordFetchJob(metrics.OutcomeError)
		return fmt.Errorf("failed to update keyword %s: %w", keywordID, err)
	}

	metrics.RecordFetchJob(string(outcome.Status))
	return nil
}

// search performs the outbound call and classifies the response.
func (j *FetchKeyword) search(ctx context.Context, name string) storage.Outcome {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	resp, err := j.searcher.Search(ctx, name)
	if err != nil {
		return storage.Failed(fmt.Sprintf("search: %v", err))
	}
	metrics.RecordSearch(resp.Duration, len(resp.Body))

	return j.classify(resp)
}

func (j *FetchKeyword) classify(resp *serp.Response) storage.Outcome {
	switch resp.StatusCode {
	case http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return storage.Failed(fmt.Sprintf("rate limited: status %d", resp.StatusCode))
	}

	page := &bypass.Page{StatusCode: resp.StatusCode, URL: resp.URL, Header: resp.Header, Body: resp.Body}
	if page.Header == nil {
		page.Header = http.Header{}
	}
	if detected, src := bypass.Analyze(page, j.cfg.Detectors); detected {
		return storage.Failed("blocked by " + src)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return storage.Failed(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	if len(resp.Body) == 0 {
		return storage.Failed("empty body")
	}

	parsed, err := serp.ParseWith(string(resp.Body), j.cfg.Selectors)
	if err != nil {
		return storage.Failed(fmt.Sprintf("parse: %v", err))
	}
	return storage.Fetched(parsed.AdURLs, parsed.ResultURLs)
}
