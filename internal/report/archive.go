package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
)

// ArchiveSummary aggregates archived submit attempts, failures included.
type ArchiveSummary struct {
	TotalRequests int            `json:"total_requests"`
	TotalErrors   int            `json:"total_errors"`
	ErrorsByKind  map[string]int `json:"errors_by_kind"`
	Malicious     int            `json:"malicious"`
	Safe          int            `json:"safe"`
	Unknown       int            `json:"unknown"`
	DetectionRate string         `json:"detection_rate"`
	AvgDuration   time.Duration  `json:"avg_duration"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Duration      time.Duration  `json:"duration"`
}

// SummarizeArchive processes archive entries into an ArchiveSummary. The
// detection rate is over successful scans only.
func SummarizeArchive(entries []*storage.Entry) ArchiveSummary {
	s := ArchiveSummary{
		ErrorsByKind:  make(map[string]int),
		DetectionRate: "0",
	}

	if len(entries) == 0 {
		return s
	}

	s.StartTime = entries[0].CreatedAt
	s.EndTime = entries[0].CreatedAt

	var totalDuration time.Duration
	for _, e := range entries {
		s.TotalRequests++
		totalDuration += e.Duration

		if e.Outcome == storage.OutcomeFailure {
			s.TotalErrors++
			s.ErrorsByKind[e.ErrorKind]++
		} else {
			switch e.Verdict {
			case scan.VerdictMalicious:
				s.Malicious++
			case scan.VerdictSafe:
				s.Safe++
			default:
				s.Unknown++
			}
		}

		if e.CreatedAt.Before(s.StartTime) {
			s.StartTime = e.CreatedAt
		}
		if e.CreatedAt.After(s.EndTime) {
			s.EndTime = e.CreatedAt
		}
	}

	if scanned := s.TotalRequests - s.TotalErrors; scanned > 0 {
		s.DetectionRate = strconv.FormatFloat(float64(s.Malicious)/float64(scanned)*100, 'f', 1, 64)
	}
	s.AvgDuration = totalDuration / time.Duration(s.TotalRequests)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteArchiveJSON writes the archive summary as indented JSON.
func WriteArchiveJSON(w io.Writer, summary ArchiveSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode archive summary: %w", err)
	}
	return nil
}

// WriteArchiveText writes a human-readable archive summary.
func WriteArchiveText(w io.Writer, summary ArchiveSummary) error {
	const textTmpl = `Vigil Archive Summary
---------------------
Time:            {{datetime .StartTime}} - {{datetime .EndTime}}
Duration:        {{.Duration}}
Total Submits:   {{.TotalRequests}}
Avg Latency:     {{.AvgDuration}}
Total Errors:    {{.TotalErrors}}
{{- range $kind, $count := .ErrorsByKind}}
  {{$kind}}: {{$count}}
{{- end}}

Malicious:       {{.Malicious}}
Safe:            {{.Safe}}
Unknown:         {{.Unknown}}
Detection Rate:  {{.DetectionRate}}%
`

	t, err := template.New("archiveReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse archive template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render archive report: %w", err)
	}

	return nil
}
