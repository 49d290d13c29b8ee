package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRedis(t *testing.T, cfg RedisConfig) *Redis {
	t.Helper()
	url := os.Getenv("KWSCOUT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("KWSCOUT_TEST_REDIS_URL not set")
	}
	cfg.Key = "kwscout:test:" + uuid.NewString()
	cfg.BlockTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q, err := NewRedis(ctx, url, cfg, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		_ = q.client.Del(context.Background(), q.cfg.Key, q.processing).Err()
		_ = q.Close()
	})
	return q
}

func TestRedis_DeliversJobs(t *testing.T) {
	q := newTestRedis(t, RedisConfig{Concurrency: 2})
	ctx := context.Background()

	want := map[string]bool{"k1": true, "k2": true, "k3": true}
	for id := range want {
		if err := q.Enqueue(ctx, NewJob("test", id)); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	var (
		mu  sync.Mutex
		got = map[string]bool{}
	)
	all := make(chan struct{})
	runErr := make(chan error, 1)
	go func() {
		runErr <- q.Run(ctx, HandlerFunc(func(_ context.Context, j Job) error {
			mu.Lock()
			defer mu.Unlock()
			got[j.KeywordID] = true
			if len(got) == len(want) {
				close(all)
			}
			return nil
		}))
	}()

	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	_ = q.Close()
	if err := <-runErr; err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
}

func TestRedis_RequeuesInFlightOnStart(t *testing.T) {
	q := newTestRedis(t, RedisConfig{Concurrency: 1})
	ctx := context.Background()

	// Simulate a worker that crashed while holding a job.
	if err := q.Enqueue(ctx, NewJob("test", "orphan")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := q.client.LMove(ctx, q.cfg.Key, q.processing, "RIGHT", "LEFT").Err(); err != nil {
		t.Fatalf("failed to stage in-flight job: %v", err)
	}

	delivered := make(chan string, 1)
	runErr := make(chan error, 1)
	go func() {
		runErr <- q.Run(ctx, HandlerFunc(func(_ context.Context, j Job) error {
			delivered <- j.KeywordID
			return nil
		}))
	}()

	select {
	case id := <-delivered:
		if id != "orphan" {
			t.Errorf("expected orphan job, got %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight job was not redelivered")
	}
	_ = q.Close()
	<-runErr
}

func TestRedis_InterruptedJobStaysInFlight(t *testing.T) {
	q := newTestRedis(t, RedisConfig{Concurrency: 1})
	if err := q.Enqueue(context.Background(), NewJob("test", "k")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := q.Run(ctx, HandlerFunc(func(ctx context.Context, _ Job) error {
		cancel()
		return ctx.Err()
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	n, err := q.client.LLen(context.Background(), q.processing).Result()
	if err != nil {
		t.Fatalf("llen failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected the interrupted job to stay in the processing list, got %d entries", n)
	}
}
