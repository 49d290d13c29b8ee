package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
)

// csvHeader defines the export column order.
var csvHeader = []string{
	"id",
	"name",
	"fetch_status",
	"ads_top_count",
	"ads_top_urls",
	"result_urls",
	"fetch_error",
	"created_at",
	"fetched_at",
}

// WriteCSV exports keywords one per row. URL lists are space separated.
func WriteCSV(w io.Writer, keywords []*storage.Keyword) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, k := range keywords {
		fetchedAt := ""
		if k.FetchedAt != nil {
			fetchedAt = k.FetchedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			k.ID,
			safeCell(k.Name),
			string(k.FetchStatus),
			strconv.Itoa(k.AdsTopCount),
			strings.Join(k.AdsTopURLs, " "),
			strings.Join(k.ResultURLs, " "),
			safeCell(k.FetchError),
			k.CreatedAt.UTC().Format(time.RFC3339),
			fetchedAt,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// safeCell prefixes text a spreadsheet would evaluate as a formula.
func safeCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// Collect pages through every keyword owned by ownerID, oldest first.
func Collect(ctx context.Context, store storage.Backend, ownerID string) ([]*storage.Keyword, error) {
	var all []*storage.Keyword
	for page := 1; ; page++ {
		batch, total, err := store.List(ctx, ownerID, page, storage.MaxPerPage)
		if err != nil {
			return nil, fmt.Errorf("failed to list keywords: %w", err)
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			return all, nil
		}
	}
}
