package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/metrics"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process fetch jobs from a shared queue",
		Long:  "Process fetch jobs without serving HTTP. Only useful with a shared queue such as redis.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bound here so sibling commands with the same flag names do not collide.
			_ = opts.v.BindPFlag("metrics.enabled", cmd.Flags().Lookup("metrics"))
			_ = opts.v.BindPFlag("metrics.port", cmd.Flags().Lookup("metrics-port"))
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Queue.Driver == "memory" {
				logger.Warn("worker started with the in-process queue; it will only see jobs it enqueues itself")
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
			}

			runErr := a.RunWorkers(ctx)
			logger.Info("worker stopped")
			return errors.Join(runErr, a.Close(), metricsSrv.Stop(context.WithoutCancel(ctx)))
		},
	}

	cmd.Flags().Bool("metrics", false, "expose Prometheus metrics")
	cmd.Flags().Int("metrics-port", 9090, "metrics port")
	return cmd
}
