// Package pipeline turns a validated batch of keyword names into pending
// keyword records, each with one scheduled fetch job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/kwscout/internal/jobs"
	"github.com/FranksOps/kwscout/internal/metrics"
	"github.com/FranksOps/kwscout/internal/queue"
	"github.com/FranksOps/kwscout/internal/storage"
)

// ErrMissingOwner is returned when a batch has no owner.
var ErrMissingOwner = errors.New("owner id is required")

// Summary describes one ingested batch.
type Summary struct {
	// Created counts records created, including unscheduled ones.
	Created int `json:"created"`
	// Unscheduled counts records whose job could not be enqueued. They are
	// marked failed rather than left pending forever.
	Unscheduled int      `json:"unscheduled"`
	IDs         []string `json:"ids"`
}

// Pipeline creates keyword records and schedules their fetch jobs.
type Pipeline struct {
	store  storage.Backend
	queue  queue.Queue
	logger *slog.Logger
}

// New creates a Pipeline.
func New(store storage.Backend, q queue.Queue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, queue: q, logger: logger}
}

// Ingest creates one pending keyword per non-blank name, in input order, and
// enqueues a fetch job for each. Names are never rejected for their content.
// A storage failure aborts the batch and returns what was created so far.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string, names []string) (Summary, error) {
	sum := Summary{IDs: make([]string, 0, len(names))}
	if strings.TrimSpace(ownerID) == "" {
		return sum, ErrMissingOwner
	}

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		kw, err := p.store.Create(ctx, ownerID, name)
		if err != nil {
			return sum, fmt.Errorf("failed to create keyword %q: %w", name, err)
		}
		sum.Created++
		sum.IDs = append(sum.IDs, kw.ID)
		metrics.KeywordsIngested.Inc()

		if err := p.queue.Enqueue(ctx, queue.NewJob(jobs.FetchKeywordJob, kw.ID)); err != nil {
			p.logger.Error("failed to schedule fetch", "keyword_id", kw.ID, "name", name, "err", err)
			sum.Unscheduled++
			if uerr := p.store.Update(ctx, kw.ID, storage.Failed(fmt.Sprintf("enqueue: %v", err))); uerr != nil {
				p.logger.Error("failed to mark unscheduled keyword", "keyword_id", kw.ID, "err", uerr)
			}
		}
	}

	p.logger.Info("batch ingested", "owner_id", ownerID, "created", sum.Created, "unscheduled", sum.Unscheduled)
	return sum, nil
}
