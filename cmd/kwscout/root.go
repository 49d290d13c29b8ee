package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/config"
)

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:          "kwscout",
		Short:        "Keyword research pipeline: upload keywords, fetch result pages, inspect ads and results",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("storage-driver", "memory", "keyword store: memory, json, sqlite, postgres, mongo")
	pf.String("storage-path", "kwscout.db", "file path for the json and sqlite stores")
	pf.String("storage-dsn", "", "postgres connection string")
	pf.String("queue-driver", "memory", "job queue: memory or redis")
	pf.String("redis-url", "redis://localhost:6379/0", "redis url for the redis queue")

	for key, flag := range map[string]string{
		"log.level":       "log-level",
		"log.format":      "log-format",
		"storage.driver":  "storage-driver",
		"storage.path":    "storage-path",
		"storage.dsn":     "storage-dsn",
		"queue.driver":    "queue-driver",
		"queue.redis_url": "redis-url",
	} {
		_ = opts.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newIngestCmd(opts),
		newReportCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger. The logger also becomes
// the slog default so packages without an injected logger share it.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
