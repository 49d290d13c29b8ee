package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwscout/internal/metrics"
)

// MemoryConfig configures an in-process queue.
type MemoryConfig struct {
	Buffer      int
	Concurrency int
	MaxAttempts int
}

// Memory is an in-process queue backed by a buffered channel. Jobs are lost
// when the process exits, and a retry is dropped when the buffer is full.
// Every job accepted before Close returns is delivered by Run.
type Memory struct {
	cfg    MemoryConfig
	logger *slog.Logger

	jobs chan Job
	// closing unblocks senders waiting on a full buffer so Close can take mu.
	closing chan struct{}
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// ensure Memory implements Queue
var _ Queue = (*Memory)(nil)

// NewMemory creates an in-process queue.
func NewMemory(cfg MemoryConfig, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Memory{
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan Job, cfg.Buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.jobs <- job:
		return nil
	case <-m.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool. After Close it drains the buffered jobs and
// returns nil.
func (m *Memory) Run(ctx context.Context, h Handler) error {
	g, gCtx := errgroup.WithContext(ctx)

	for i := 0; i < m.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case job := <-m.jobs:
					m.deliver(gCtx, h, job)
				case <-m.done:
					return m.drain(gCtx, h)
				}
			}
		})
	}

	return g.Wait()
}

func (m *Memory) drain(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-m.jobs:
			m.deliver(ctx, h, job)
		default:
			return nil
		}
	}
}

func (m *Memory) deliver(ctx context.Context, h Handler, job Job) {
	err := h.Handle(ctx, job)
	metrics.RecordQueueJob(err)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		m.logger.Warn("job interrupted by shutdown", "job", job.Name, "job_id", job.ID, "err", err)
		return
	}

	if !retryable(job, m.cfg.MaxAttempts) {
		m.logger.Error("job failed, giving up", "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "err", err)
		return
	}
	m.logger.Warn("job failed, requeueing", "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "err", err)

	job.Attempt++
	// A worker must never block on its own queue.
	select {
	case m.jobs <- job:
	default:
		m.logger.Error("queue full, dropping retry", "job_id", job.ID)
	}
}

// Close stops accepting jobs. Once it returns no Enqueue is in flight, so
// the drain in Run sees every accepted job. Safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.mu.Lock()
		m.closed = true
		close(m.done)
		m.mu.Unlock()
	})
	return nil
}
