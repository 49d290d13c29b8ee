package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/kwscout/internal/metrics"
)

// RedisConfig configures a Redis list backed queue.
type RedisConfig struct {
	// Key is the pending list. In-flight jobs live in Key + ":processing".
	Key          string
	Concurrency  int
	MaxAttempts  int
	BlockTimeout time.Duration
}

// Redis is a queue stored in Redis lists. Workers move each job to a
// processing list while it runs, so jobs held by a crashed worker are
// redelivered the next time Run starts.
type Redis struct {
	client     *redis.Client
	cfg        RedisConfig
	processing string
	logger     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// ensure Redis implements Queue
var _ Queue = (*Redis)(nil)

// NewRedis connects to url (redis://...) and pings the server.
func NewRedis(ctx context.Context, url string, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisWithClient(client, cfg, logger), nil
}

// NewRedisWithClient wraps an existing client. Close closes the client.
func NewRedisWithClient(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Key == "" {
		cfg.Key = "kwscout:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	return &Redis{
		client:     client,
		cfg:        cfg,
		processing: cfg.Key + ":processing",
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	return r.push(ctx, job)
}

func (r *Redis) push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := r.client.LPush(ctx, r.cfg.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Run requeues jobs left in the processing list, then starts the workers.
// Run returns nil once Close is called and in-flight jobs finish.
func (r *Redis) Run(ctx context.Context, h Handler) error {
	select {
	case <-r.done:
		return nil
	default:
	}
	r.workers.Add(1)
	defer r.workers.Done()

	if err := r.recover(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			return r.work(gCtx, h)
		})
	}
	return g.Wait()
}

// recover moves every processing entry back onto the pending list.
func (r *Redis) recover(ctx context.Context) error {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processing, r.cfg.Key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to requeue in-flight jobs: %w", err)
		}
		n++
	}
	if n > 0 {
		r.logger.Info("requeued in-flight jobs", "count", n)
	}
	return nil
}

func (r *Redis) work(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		default:
		}

		raw, err := r.client.BLMove(ctx, r.cfg.Key, r.processing, "RIGHT", "LEFT", r.cfg.BlockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to pop job", "err", err)
			select {
			case <-time.After(r.cfg.BlockTimeout):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		r.deliver(ctx, h, raw)
	}
}

func (r *Redis) deliver(ctx context.Context, h Handler, raw string) {
	ack := true
	defer func() {
		if !ack {
			return
		}
		if err := r.client.LRem(context.WithoutCancel(ctx), r.processing, 1, raw).Err(); err != nil {
			r.logger.Error("failed to ack job", "err", err)
		}
	}()

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		r.logger.Error("dropping undecodable job", "err", err)
		return
	}

	err := h.Handle(ctx, job)
	metrics.RecordQueueJob(err)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Left in the processing list; the next Run requeues it.
		ack = false
		r.logger.Warn("job interrupted by shutdown", "job", job.Name, "job_id", job.ID, "err", err)
		return
	}
	if !retryable(job, r.cfg.MaxAttempts) {
		r.logger.Error("job failed, giving up", "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "err", err)
		return
	}
	r.logger.Warn("job failed, requeueing", "job", job.Name, "job_id", job.ID, "attempt", job.Attempt, "err", err)
	job.Attempt++
	if err := r.push(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error("failed to requeue job", "job_id", job.ID, "err", err)
	}
}

// Pending returns the number of jobs waiting for a worker.
func (r *Redis) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.cfg.Key).Result()
}

// Close stops the workers after their current job, waits for Run to return
// and closes the client.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.workers.Wait()
		err = r.client.Close()
	})
	return err
}
