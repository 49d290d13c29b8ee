package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/FranksOps/kwscout/internal/app"
	"github.com/FranksOps/kwscout/internal/report"
	"github.com/FranksOps/kwscout/internal/storage"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		owner  string
		format string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize or export an owner's keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			keywords, err := report.Collect(ctx, store, owner)
			if err != nil {
				return err
			}
			logger.Debug("collected keywords", "owner_id", owner, "count", len(keywords))

			out := cmd.OutOrStdout()
			summary := report.GenerateSummary(owner, keywords, top)
			switch format {
			case "text":
				if err := report.WriteText(out, summary); err != nil {
					return err
				}
				return writeKeywordLines(out, keywords)
			case "json":
				return report.WriteJSON(out, summary)
			case "html":
				return report.WriteHTML(out, summary)
			case "csv":
				return report.WriteCSV(out, keywords)
			default:
				return errors.New("unknown format " + format + " (want text, json, html or csv)")
			}
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id to report on")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, html or csv")
	cmd.Flags().IntVar(&top, "top", report.DefaultTopDomains, "number of ad domains to rank")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// writeKeywordLines prints one colored line per keyword.
func writeKeywordLines(w io.Writer, keywords []*storage.Keyword) error {
	nameColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	fetched := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()
	pending := color.New(color.FgYellow).SprintFunc()

	if _, err := fmt.Fprintln(w, "\nKeywords:"); err != nil {
		return err
	}
	for _, k := range keywords {
		var status string
		switch k.FetchStatus {
		case storage.StatusFetched:
			status = fetched(fmt.Sprintf("fetched  ads=%d results=%d", k.AdsTopCount, len(k.ResultURLs)))
		case storage.StatusFailed:
			status = failed("failed   " + k.FetchError)
		default:
			status = pending(string(k.FetchStatus))
		}
		if _, err := fmt.Fprintf(w, "  %s  %s\n", nameColor(k.Name), status); err != nil {
			return err
		}
	}
	return nil
}
