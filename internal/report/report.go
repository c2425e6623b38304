// Package report derives detection statistics from scan records and renders
// them as text, JSON or HTML.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/vigil/internal/filter"
	"github.com/FranksOps/vigil/internal/scan"
)

// Summary is a rendered snapshot of a session: the filtered scans, their
// stats, and the stats of the whole history.
type Summary struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Spec        filter.Spec    `json:"filter"`
	Stats       Stats          `json:"stats"`
	AllStats    Stats          `json:"all_stats"`
	Records     []*scan.Record `json:"records"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
}

// GenerateSummary builds a Summary from the full history and the subset that
// passed spec.
func GenerateSummary(all, filtered []*scan.Record, spec filter.Spec, now time.Time) Summary {
	s := Summary{
		GeneratedAt: now,
		Spec:        spec.Normalize(),
		Stats:       Summarize(filtered),
		AllStats:    Summarize(all),
		Records:     filtered,
	}
	if s.Records == nil {
		s.Records = []*scan.Record{}
	}

	for i, r := range filtered {
		if i == 0 || r.Timestamp.Before(s.StartTime) {
			s.StartTime = r.Timestamp
		}
		if i == 0 || r.Timestamp.After(s.EndTime) {
			s.EndTime = r.Timestamp
		}
	}
	return s
}

// DescribeSpec renders a filter spec on one line.
func DescribeSpec(spec filter.Spec) string {
	spec = spec.Normalize()
	var b strings.Builder
	fmt.Fprintf(&b, "risk=%s tld=%s date=%s", spec.Risk, spec.TLD, spec.Date)
	if spec.Date == filter.DateCustom {
		b.WriteString(" (")
		b.WriteString(formatBound(spec.Custom.Start))
		b.WriteString(" .. ")
		b.WriteString(formatBound(spec.Custom.End))
		b.WriteString(")")
	}
	return b.String()
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format(time.DateOnly)
}

var funcs = map[string]any{
	"verdict":  func(r *scan.Record) string { return string(r.Verdict()) },
	"spec":     DescribeSpec,
	"datetime": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"percent":  func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Vigil Scan Summary
------------------
Generated:       {{datetime .GeneratedAt}}
Filter:          {{spec .Spec}}

Total Scans:     {{.Stats.Total}}
Malicious:       {{.Stats.Malicious}}
Safe:            {{.Stats.Safe}}
Detection Rate:  {{.Stats.DetectionRate}}%
{{- if ne .Stats.Total .AllStats.Total}}
History:         {{.AllStats.Total}} scans, {{.AllStats.DetectionRate}}% detected
{{- end}}

Scans:
{{- range .Records}}
  {{datetime .Timestamp}}  {{printf "%-9s" (verdict .)}}  {{.URL}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. URLs come
// from operators and remote responses, so html/template escapes them.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Vigil Scan Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .malicious { background: #fdecea; }
  .safe { background: #eaf7ea; }
  .unknown { background: #fdf8e4; }
</style>
</head>
<body>
  <h1>Vigil Scan Report</h1>
  <p><strong>Generated:</strong> {{datetime .GeneratedAt}}</p>
  <p><strong>Filter:</strong> <span id="filter">{{spec .Spec}}</span></p>

  <div class="stat-card" id="total">
    <div>Total Scans</div>
    <div class="stat-val">{{.Stats.Total}}</div>
  </div>
  <div class="stat-card" id="malicious">
    <div>Malicious</div>
    <div class="stat-val" style="color: {{if gt .Stats.Malicious 0}}red{{else}}green{{end}};">{{.Stats.Malicious}}</div>
  </div>
  <div class="stat-card" id="safe">
    <div>Safe</div>
    <div class="stat-val">{{.Stats.Safe}}</div>
  </div>
  <div class="stat-card" id="rate">
    <div>Detection Rate</div>
    <div class="stat-val">{{.Stats.DetectionRate}}%</div>
  </div>

  <h3>Scans</h3>
  <table id="scans">
    <tr><th>Time</th><th>URL</th><th>Verdict</th><th>Simple</th><th>Advanced</th><th>ML Confidence</th></tr>
    {{- range .Records}}
    <tr class="{{verdict .}}">
      <td>{{datetime .Timestamp}}</td>
      <td>{{.URL}}</td>
      <td>{{verdict .}}</td>
      <td>{{with .Filters.SimpleHeuristic}}{{.RiskPercent}}% {{.Result}}{{else}}-{{end}}</td>
      <td>{{with .Filters.AdvancedHeuristic}}{{.Risk}}% {{.Classification}}{{else}}-{{end}}</td>
      <td>{{with .Filters.MachineLearning}}{{percent .Probability}}{{else}}-{{end}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="6">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}
