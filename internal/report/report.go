// Package report aggregates an owner's keywords into a summary and exports
// them as text, JSON, HTML or CSV.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
)

// DefaultTopDomains is how many ad domains a summary ranks.
const DefaultTopDomains = 10

// DomainCount is the number of top ad slots held by one domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Summary contains aggregated metrics about an owner's keywords.
type Summary struct {
	OwnerID         string         `json:"owner_id"`
	TotalKeywords   int            `json:"total_keywords"`
	Pending         int            `json:"pending"`
	Fetched         int            `json:"fetched"`
	Failed          int            `json:"failed"`
	TotalAds        int            `json:"total_ads"`
	TotalResultURLs int            `json:"total_result_urls"`
	TopAdDomains    []DomainCount  `json:"top_ad_domains"`
	FailureReasons  map[string]int `json:"failure_reasons"`
	FirstCreated    time.Time      `json:"first_created"`
	LastCreated     time.Time      `json:"last_created"`
}

// GenerateSummary processes keywords into summary metrics. topN limits the ad
// domain ranking; zero or less uses DefaultTopDomains.
func GenerateSummary(ownerID string, keywords []*storage.Keyword, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopDomains
	}
	s := Summary{
		OwnerID:        ownerID,
		TopAdDomains:   []DomainCount{},
		FailureReasons: make(map[string]int),
	}
	if len(keywords) == 0 {
		return s
	}

	s.FirstCreated = keywords[0].CreatedAt
	s.LastCreated = keywords[0].CreatedAt
	domains := make(map[string]int)

	for _, k := range keywords {
		s.TotalKeywords++
		switch k.FetchStatus {
		case storage.StatusPending:
			s.Pending++
		case storage.StatusFetched:
			s.Fetched++
		case storage.StatusFailed:
			s.Failed++
			s.FailureReasons[failureClass(k.FetchError)]++
		}
		s.TotalAds += k.AdsTopCount
		s.TotalResultURLs += len(k.ResultURLs)

		for _, u := range k.AdsTopURLs {
			if d := domainOf(u); d != "" {
				domains[d]++
			}
		}

		if k.CreatedAt.Before(s.FirstCreated) {
			s.FirstCreated = k.CreatedAt
		}
		if k.CreatedAt.After(s.LastCreated) {
			s.LastCreated = k.CreatedAt
		}
	}

	for d, n := range domains {
		s.TopAdDomains = append(s.TopAdDomains, DomainCount{Domain: d, Count: n})
	}
	sort.Slice(s.TopAdDomains, func(i, j int) bool {
		a, b := s.TopAdDomains[i], s.TopAdDomains[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	if len(s.TopAdDomains) > topN {
		s.TopAdDomains = s.TopAdDomains[:topN]
	}
	return s
}

// failureClass drops the detail after the first colon so that, for example,
// every transport error counts under "search".
func failureClass(reason string) string {
	if reason == "" {
		return "unknown"
	}
	if i := strings.Index(reason, ":"); i > 0 {
		return reason[:i]
	}
	return reason
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

const textTmpl = `Keyword Summary ({{.OwnerID}})
---------------
Created:       {{fmtTime .FirstCreated}} - {{fmtTime .LastCreated}}
Keywords:      {{.TotalKeywords}}
  pending:     {{.Pending}}
  fetched:     {{.Fetched}}
  failed:      {{.Failed}}
Top Ads:       {{.TotalAds}}
Result URLs:   {{.TotalResultURLs}}

Top Ad Domains:
{{- range .TopAdDomains}}
  {{.Domain}}: {{.Count}}
{{- else}}
  None
{{- end}}

Failures:
{{- range $reason, $count := .FailureReasons}}
  {{$reason}}: {{$count}}
{{- else}}
  None
{{- end}}
`

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := texttemplate.New("textReport").Funcs(texttemplate.FuncMap{"fmtTime": fmtTime}).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("failed to parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("failed to render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Keyword Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Keyword Report</h1>
  <p><strong>Owner:</strong> {{.OwnerID}}</p>
  <div class="stat-card"><div>Keywords</div><div class="stat-val">{{.TotalKeywords}}</div></div>
  <div class="stat-card"><div>Fetched</div><div class="stat-val">{{.Fetched}}</div></div>
  <div class="stat-card"><div>Failed</div><div class="stat-val">{{.Failed}}</div></div>
  <div class="stat-card"><div>Top Ads</div><div class="stat-val">{{.TotalAds}}</div></div>

  <h3>Top Ad Domains</h3>
  <table>
    <tr><th>Domain</th><th>Ads</th></tr>
    {{- range .TopAdDomains}}
    <tr><td>{{.Domain}}</td><td>{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("failed to parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
