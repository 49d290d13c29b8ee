package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var workers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and process fetch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bound here so sibling commands with the same flag names do not collide.
			_ = opts.v.BindPFlag("metrics.enabled", cmd.Flags().Lookup("metrics"))
			_ = opts.v.BindPFlag("metrics.port", cmd.Flags().Lookup("metrics-port"))
			_ = opts.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}

			var metricsSrv *metrics.Server
			if cfg.Metrics.Enabled {
				metricsSrv = metrics.Start(cfg.Metrics.Port)
				logger.Info("metrics server listening", "port", cfg.Metrics.Port)
			}

			srv := a.Server()
			errCh := make(chan error, 2)
			go func() { errCh <- srv.Listen(cfg.HTTP.Addr) }()

			workersDone := make(chan struct{})
			if workers {
				go func() {
					defer close(workersDone)
					if err := a.RunWorkers(ctx); err != nil {
						errCh <- err
					}
				}()
			} else {
				close(workersDone)
			}

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err = <-errCh:
				logger.Error("server stopped", "err", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			shutdownErr := errors.Join(
				srv.Shutdown(shutdownCtx),
				a.Queue.Close(),
			)
			stop()
			<-workersDone
			shutdownErr = errors.Join(shutdownErr, a.Store.Close(), metricsSrv.Stop(shutdownCtx))

			return errors.Join(err, shutdownErr)
		},
	}

	cmd.Flags().Bool("metrics", false, "expose Prometheus metrics")
	cmd.Flags().Int("metrics-port", 9090, "metrics port")
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&workers, "workers", true, "run fetch workers in this process")
	return cmd
}
