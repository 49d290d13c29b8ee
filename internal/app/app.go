// Package app wires configured components into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/kwscout/internal/config"
	"github.com/FranksOps/kwscout/internal/fingerprint"
	"github.com/FranksOps/kwscout/internal/jobs"
	"github.com/FranksOps/kwscout/internal/pipeline"
	"github.com/FranksOps/kwscout/internal/queue"
	"github.com/FranksOps/kwscout/internal/scraper"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/server"
	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/FranksOps/kwscout/internal/storage/jsonbackend"
	"github.com/FranksOps/kwscout/internal/storage/memory"
	"github.com/FranksOps/kwscout/internal/storage/mongo"
	"github.com/FranksOps/kwscout/internal/storage/postgres"
	"github.com/FranksOps/kwscout/internal/storage/sqlite"
	"github.com/FranksOps/kwscout/pkg/proxy"
	"github.com/FranksOps/kwscout/pkg/ratelimit"
	"github.com/FranksOps/kwscout/pkg/useragent"
)

// App holds the long-lived components shared by the commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Backend
	Queue    queue.Queue
	Pipeline *pipeline.Pipeline
	// Jobs routes queue deliveries to their handlers.
	Jobs *queue.Mux
}

// New opens the configured store and queue and registers the job handlers.
// searcher may be nil, in which case one is built from cfg.Search.
func New(ctx context.Context, cfg *config.Config, searcher serp.Searcher, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	q, err := OpenQueue(ctx, cfg.Queue, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if searcher == nil {
		searcher, err = NewSearcher(cfg.Search, logger)
		if err != nil {
			_ = q.Close()
			_ = store.Close()
			return nil, err
		}
	}

	mux := queue.NewMux(logger)
	mux.Register(jobs.FetchKeywordJob, jobs.NewFetchKeyword(store, searcher, jobs.FetchKeywordConfig{
		Timeout: cfg.Search.Timeout,
	}, logger))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Queue:    q,
		Pipeline: pipeline.New(store, q, logger),
		Jobs:     mux,
	}, nil
}

// Server builds the HTTP API over the app's store and pipeline.
func (a *App) Server() *server.Server {
	return server.New(server.Config{
		OwnerHeader:  a.Config.HTTP.OwnerHeader,
		BodyLimit:    a.Config.HTTP.BodyLimit,
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
	}, a.Store, a.Pipeline, a.Logger)
}

// RunWorkers delivers queued jobs until ctx is cancelled or the queue closes.
func (a *App) RunWorkers(ctx context.Context) error {
	a.Logger.Info("workers started", "driver", a.Config.Queue.Driver, "concurrency", a.Config.Queue.Concurrency)
	err := a.Queue.Run(ctx, a.Jobs)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close closes the queue, then the store.
func (a *App) Close() error {
	return errors.Join(a.Queue.Close(), a.Store.Close())
}

// OpenStore opens the keyword store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	var (
		store storage.Backend
		err   error
	)
	switch cfg.Driver {
	case "", "memory":
		store = memory.New()
	case "json":
		store, err = jsonbackend.New(cfg.Path)
	case "sqlite":
		store, err = sqlite.New(cfg.Path)
	case "postgres":
		store, err = postgres.New(ctx, cfg.DSN)
	case "mongo":
		store, err = mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// OpenQueue opens the job queue selected by cfg.Driver.
func OpenQueue(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return queue.NewMemory(queue.MemoryConfig{
			Buffer:      cfg.Buffer,
			Concurrency: cfg.Concurrency,
			MaxAttempts: cfg.MaxAttempts,
		}, logger), nil
	case "redis":
		q, err := queue.NewRedis(ctx, cfg.RedisURL, queue.RedisConfig{
			Key:         cfg.RedisKey,
			Concurrency: cfg.Concurrency,
			MaxAttempts: cfg.MaxAttempts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis queue: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

// NewSearcher builds the Google searcher with its fetch stack: TLS
// fingerprint, User-Agent rotation, optional proxies and pacing.
func NewSearcher(cfg config.SearchConfig, logger *slog.Logger) (*serp.Google, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if len(cfg.Proxies) > 0 || cfg.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.Add(cfg.Proxies...); err != nil {
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
		if cfg.ProxyFile != "" {
			if err := proxies.LoadFile(cfg.ProxyFile); err != nil {
				return nil, err
			}
		}
		logger.Info("proxy rotation enabled", "proxies", proxies.Len())
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Timeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		ProxyPool:    proxies,
		UAPool:       useragent.NewPool(cfg.UserAgents),
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return serp.NewGoogle(serp.GoogleConfig{
		BaseURL:  cfg.BaseURL,
		Language: cfg.Language,
		Region:   cfg.Region,
	}, fetcher)
}
