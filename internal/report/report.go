package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/FranksOps/kwscout/internal/qualify"
	"github.com/FranksOps/kwscout/internal/serp"
)

// Status is the outcome of one keyword in a run.
type Status string

const (
	StatusOK              Status = "OK"
	StatusFailed          Status = "FAILED"
	StatusBudgetExhausted Status = "BUDGET_EXHAUSTED"
)

// Entry is one keyword's line in the report. Counts and tier are set only
// for OK entries.
type Entry struct {
	Keyword     string            `json:"keyword"`
	Status      Status            `json:"status"`
	Tier        qualify.Tier      `json:"tier,omitempty"`
	AllInTitle  *serp.Count       `json:"allintitle_count,omitempty"`
	InTitle     *serp.Count       `json:"intitle_count,omitempty"`
	// Malformed names the counts that are unknown; their JSON value is null.
	Malformed   []serp.Operator   `json:"malformed,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Source      serp.Source       `json:"source,omitempty"`
	Competitors []serp.Competitor `json:"competitors,omitempty"`
	Cached      bool              `json:"cached"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// OK builds the entry for a classified keyword.
func OK(v qualify.Verdict, m *serp.MetricsResult, cached bool) Entry {
	all, in := v.AllInTitle, v.InTitle
	var malformed []serp.Operator
	if all.IsInfinite() {
		malformed = append(malformed, serp.OpAllInTitle)
	}
	if in.IsInfinite() {
		malformed = append(malformed, serp.OpInTitle)
	}
	return Entry{
		Keyword:     v.Keyword,
		Status:      StatusOK,
		Tier:        v.Tier,
		AllInTitle:  &all,
		InTitle:     &in,
		Malformed:   malformed,
		Reason:      v.Reason,
		Source:      m.Source,
		Competitors: m.Competitors,
		Cached:      cached,
	}
}

// Failed builds the entry for a keyword whose fetch failed.
func Failed(keyword, kind string, err error) Entry {
	e := Entry{Keyword: keyword, Status: StatusFailed, ErrorKind: kind}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Exhausted builds the entry for a keyword skipped for lack of budget.
func Exhausted(keyword string) Entry {
	return Entry{Keyword: keyword, Status: StatusBudgetExhausted, ErrorKind: "budget_exhausted"}
}

// Summary contains run-level totals.
type Summary struct {
	RunID        string               `json:"run_id"`
	Provider     serp.Source          `json:"provider"`
	Strategy     string               `json:"strategy"`
	MaxCalls     int                  `json:"max_calls"`
	TotalCalls   int                  `json:"total_calls"`
	TotalCost    decimal.Decimal      `json:"total_cost"`
	ObservedCost decimal.Decimal      `json:"observed_cost"`
	TierCounts   map[qualify.Tier]int `json:"tier_counts"`
	StatusCounts map[Status]int       `json:"status_counts"`
	CacheHits    int                  `json:"cache_hits"`
	StartTime    time.Time            `json:"start_time"`
	EndTime      time.Time            `json:"end_time"`
	Duration     time.Duration        `json:"duration_ns"`
}

// Report is the result of a run. Entries follow input order.
type Report struct {
	Summary Summary `json:"summary"`
	Entries []Entry `json:"entries"`
}

// GenerateSummary counts tiers, statuses and cache hits over entries. Every
// tier and status appears in the maps, zero or not.
func GenerateSummary(entries []Entry) Summary {
	s := Summary{
		TierCounts:   make(map[qualify.Tier]int, len(qualify.Tiers)),
		StatusCounts: make(map[Status]int, 3),
	}
	for _, t := range qualify.Tiers {
		s.TierCounts[t] = 0
	}
	for _, st := range []Status{StatusOK, StatusFailed, StatusBudgetExhausted} {
		s.StatusCounts[st] = 0
	}

	for _, e := range entries {
		s.StatusCounts[e.Status]++
		if e.Status == StatusOK {
			s.TierCounts[e.Tier]++
		}
		if e.Cached {
			s.CacheHits++
		}
	}
	return s
}

// Ranked returns OK entries best first, followed by the rest in input order.
func (r *Report) Ranked() []Entry {
	var ok, rest []Entry
	for _, e := range r.Entries {
		if e.Status == StatusOK {
			ok = append(ok, e)
		} else {
			rest = append(rest, e)
		}
	}
	slices.SortStableFunc(ok, func(a, b Entry) int {
		return qualify.Compare(verdictOf(a), verdictOf(b))
	})
	return append(ok, rest...)
}

func verdictOf(e Entry) qualify.Verdict {
	v := qualify.Verdict{Keyword: e.Keyword, Tier: e.Tier, AllInTitle: serp.Infinite, InTitle: serp.Infinite}
	if e.AllInTitle != nil {
		v.AllInTitle = *e.AllInTitle
	}
	if e.InTitle != nil {
		v.InTitle = *e.InTitle
	}
	return v
}

// Format selects a report writer.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
)

// ParseFormat resolves a format name. The empty string selects text.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(raw)); f {
	case "":
		return FormatText, nil
	case FormatJSON, FormatText, FormatHTML, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q", raw)
}

// Write renders r to w in format f.
func Write(w io.Writer, f Format, r *Report) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	default:
		return WriteText(w, r)
	}
}

// WriteJSON writes the report to the provided writer in JSON format.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: json: %w", err)
	}
	return nil
}

// count renders a count with thousands separators, or "unknown" for the
// sentinel.
func count(c *serp.Count) string {
	if c == nil {
		return "-"
	}
	if c.IsInfinite() {
		return "unknown"
	}
	return humanize.Comma(int64(*c))
}

func competitors(cs []serp.Competitor) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("#%d %s (%s)", c.Rank, c.Domain, c.Category))
	}
	return strings.Join(parts, " / ")
}

var funcs = map[string]any{
	"count":       count,
	"competitors": competitors,
	"comma":       func(n int) string { return humanize.Comma(int64(n)) },
	"tiers":       func() []qualify.Tier { return qualify.Tiers },
}

type view struct {
	*Report
	Rows []Entry
}

// WriteText writes a human-readable text report to the provided writer.
func WriteText(w io.Writer, r *Report) error {
	const textTmpl = `kwscout Keyword Report
----------------------
Run:           {{.Summary.RunID}} ({{.Summary.Provider}}, {{.Summary.Strategy}})
Time:          {{.Summary.StartTime.Format "2006-01-02 15:04:05"}} - {{.Summary.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Summary.Duration}}
Calls:         {{comma .Summary.TotalCalls}} / {{comma .Summary.MaxCalls}}
Cost:          {{.Summary.TotalCost}} (provider reported {{.Summary.ObservedCost}})
Cache Hits:    {{.Summary.CacheHits}}

Tiers:
{{- range tiers}}
  {{.}}: {{index $.Summary.TierCounts .}}
{{- end}}

Status:
{{- range $st, $n := .Summary.StatusCounts}}
  {{$st}}: {{$n}}
{{- end}}

Keywords:
{{- range .Rows}}
  {{if eq .Status "OK"}}[{{.Tier}}] {{.Keyword}}  allintitle={{count .AllInTitle}} intitle={{count .InTitle}}{{if .Cached}} (cached){{end}}
    {{.Reason}}{{else}}[{{.Status}}] {{.Keyword}}  {{.ErrorKind}}{{end}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: text: %w", err)
	}

	if err := t.Execute(w, view{Report: r, Rows: r.Ranked()}); err != nil {
		return fmt.Errorf("report: text: %w", err)
	}

	return nil
}

// WriteHTML writes an HTML report to the provided writer. Keywords are
// escaped by html/template.
func WriteHTML(w io.Writer, r *Report) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>kwscout Keyword Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .GOLD { background: #fff4c2; }
  .FAILED, .BUDGET_EXHAUSTED { color: #999; }
</style>
</head>
<body>
  <h1>kwscout Keyword Report</h1>
  <p><strong>Run:</strong> {{.Summary.RunID}} &middot; {{.Summary.Provider}} &middot; {{.Summary.Strategy}}</p>
  <p><strong>Time:</strong> {{.Summary.StartTime.Format "2006-01-02 15:04:05"}} to {{.Summary.EndTime.Format "2006-01-02 15:04:05"}} ({{.Summary.Duration}})</p>

  <div class="stat-card">
    <div>Calls</div>
    <div class="stat-val">{{comma .Summary.TotalCalls}} / {{comma .Summary.MaxCalls}}</div>
  </div>
  <div class="stat-card">
    <div>Cost</div>
    <div class="stat-val">{{.Summary.TotalCost}}</div>
  </div>
  {{- range tiers}}
  <div class="stat-card">
    <div>{{.}}</div>
    <div class="stat-val">{{index $.Summary.TierCounts .}}</div>
  </div>
  {{- end}}

  <h3>Keywords</h3>
  <table>
    <tr><th>Keyword</th><th>Status</th><th>Tier</th><th>allintitle</th><th>intitle</th><th>Weak competitors</th><th>Reason</th></tr>
    {{- range .Rows}}
    <tr class="{{if eq .Status "OK"}}{{.Tier}}{{else}}{{.Status}}{{end}}"><td>{{.Keyword}}</td><td>{{.Status}}{{if .Cached}} (cached){{end}}</td><td>{{.Tier}}</td><td>{{count .AllInTitle}}</td><td>{{count .InTitle}}</td><td>{{competitors .Competitors}}</td><td>{{if .Reason}}{{.Reason}}{{else}}{{.ErrorKind}}{{end}}</td></tr>
    {{- else}}
    <tr><td colspan="7">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: html: %w", err)
	}

	if err := t.Execute(w, view{Report: r, Rows: r.Ranked()}); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}

	return nil
}
