package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/csvbatch"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Validate a keyword CSV and schedule a fetch for every keyword",
		Long: "Validate a keyword CSV and schedule a fetch for every keyword.\n" +
			"With the in-process queue the jobs run before the command exits.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			names, err := csvbatch.Validate(&csvbatch.File{Filename: filepath.Base(args[0]), Body: f})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}

			sum, err := a.Pipeline.Ingest(ctx, owner, names)
			if err != nil {
				return errors.Join(err, a.Close())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d keywords (%d unscheduled)\n", sum.Created, sum.Unscheduled)

			if cfg.Queue.Driver == "memory" {
				// Closing first makes the workers drain the queue and return.
				if err := a.Queue.Close(); err != nil {
					return err
				}
				if err := a.RunWorkers(ctx); err != nil {
					return errors.Join(err, a.Close())
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all fetch jobs finished")
			}
			return a.Close()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id for the new keywords")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
