// Package queue delivers background jobs to handlers with at-least-once
// semantics. Handlers must tolerate seeing the same job more than once.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// DefaultMaxAttempts bounds redelivery of a job whose handler returned an error.
const DefaultMaxAttempts = 3

// Job is one unit of background work.
type Job struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	KeywordID  string    `json:"keyword_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob returns a first-attempt job named name for keywordID.
func NewJob(name, keywordID string) Job {
	return Job{
		ID:         uuid.NewString(),
		Name:       name,
		KeywordID:  keywordID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Handler processes a job. A returned error causes redelivery until the
// attempt limit is reached.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Queue is a job broker.
type Queue interface {
	// Enqueue schedules job for delivery.
	Enqueue(ctx context.Context, job Job) error
	// Run delivers jobs to h until ctx is cancelled or the queue is closed.
	Run(ctx context.Context, h Handler) error
	// Close stops accepting jobs and lets Run return.
	Close() error
}

// Mux routes jobs to handlers by name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewMux returns an empty router.
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{handlers: make(map[string]Handler), logger: logger}
}

// Register binds name to h, replacing any previous handler.
func (m *Mux) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Handle dispatches job. Jobs with no registered handler are logged and
// dropped so they are not redelivered forever.
func (m *Mux) Handle(ctx context.Context, job Job) error {
	m.mu.RLock()
	h, ok := m.handlers[job.Name]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("dropping job with no handler", "job", job.Name, "job_id", job.ID)
		return nil
	}
	return h.Handle(ctx, job)
}

func retryable(job Job, maxAttempts int) bool {
	return job.Attempt < maxAttempts
}
