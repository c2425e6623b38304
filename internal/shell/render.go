package shell

import (
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/session"
	"github.com/fatih/color"
)

type palette struct {
	red, green, yellow, cyan, dim *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		red:    color.New(color.FgRed, color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.red, p.green, p.yellow, p.cyan, p.dim} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return p
}

func (p palette) prompt(s string) string { return p.cyan.Sprint(s) }
func (p palette) info(s string) string   { return p.dim.Sprint(s) }
func (p palette) bad(s string) string    { return p.red.Sprint(s) }

// verdict colours a label: red for malicious, green for safe, yellow when
// the classifier gave no answer.
func (p palette) verdict(v scan.Verdict) string {
	label := strings.ToUpper(string(v))
	switch v {
	case scan.VerdictMalicious:
		return p.red.Sprint(label)
	case scan.VerdictSafe:
		return p.green.Sprint(label)
	}
	return p.yellow.Sprint(label)
}

func (p palette) flag(suspicious bool, s string) string {
	if suspicious {
		return p.red.Sprint(s)
	}
	return p.green.Sprint(s)
}

func (s *Shell) printErr(err error) {
	fmt.Fprintf(s.out, "%s %s\n", s.pal.bad("!"), scan.Message(err))
}

func (s *Shell) printRecord(rec *scan.Record) {
	fmt.Fprintf(s.out, "\n%s  %s\n", s.pal.verdict(rec.Verdict()), rec.URL)
	fmt.Fprintf(s.out, "  %s\n", s.pal.info(fmt.Sprintf("scanned %s in %s", formatTime(rec.Timestamp), rec.Duration.Round(time.Millisecond))))

	f := rec.Filters
	if sh := f.SimpleHeuristic; sh != nil {
		fmt.Fprintf(s.out, "  simple heuristic    %s  %s\n",
			s.pal.flag(sh.Suspicious(), fmt.Sprintf("%5.1f%% risk", sh.RiskPercent)), sh.Result)
	} else {
		fmt.Fprintf(s.out, "  simple heuristic    %s\n", s.pal.info("n/a"))
	}

	if ah := f.AdvancedHeuristic; ah != nil {
		fmt.Fprintf(s.out, "  advanced heuristic  %s  %s\n",
			s.pal.flag(ah.Suspicious(), fmt.Sprintf("%5.1f  risk", ah.Risk)), ah.Classification)
		for _, r := range ah.Reasons {
			fmt.Fprintf(s.out, "                      - %s\n", r)
		}
	} else {
		fmt.Fprintf(s.out, "  advanced heuristic  %s\n", s.pal.info("n/a"))
	}

	if ml := f.MachineLearning; ml != nil {
		detail := fmt.Sprintf("p=%.2f", ml.Probability)
		if ml.Error != "" {
			detail = ml.Error
		}
		fmt.Fprintf(s.out, "  machine learning    %s  %s %s\n", s.pal.verdict(rec.Verdict()), ml.Classification, s.pal.info(detail))
	} else {
		fmt.Fprintf(s.out, "  machine learning    %s\n", s.pal.info("n/a"))
	}
	fmt.Fprintln(s.out)
}

func (s *Shell) printHistory(v session.View) {
	if len(v.Filtered) == 0 {
		fmt.Fprintln(s.out, s.pal.info("No scans match the current filter."))
		return
	}
	for i, rec := range v.Filtered {
		fmt.Fprintf(s.out, "%3d. %-9s  %s  %s\n", i+1, s.pal.verdict(rec.Verdict()), s.pal.info(formatTime(rec.Timestamp)), rec.URL)
	}
}

func (s *Shell) printStats(v session.View) {
	writeStats(s, "filtered", v.Stats)
	if v.AllStats != v.Stats {
		writeStats(s, "history ", v.AllStats)
	}
}

func writeStats(s *Shell, label string, st report.Stats) {
	fmt.Fprintf(s.out, "%s  total %d  malicious %s  safe %s  detection rate %s%%\n",
		s.pal.info(label), st.Total,
		s.pal.red.Sprint(st.Malicious), s.pal.green.Sprint(st.Safe), st.DetectionRate)
}

func (s *Shell) printSpec(v session.View) {
	fmt.Fprintf(s.out, "%s %s  (%d of %d scans)\n", s.pal.info("filter:"), report.DescribeSpec(v.Spec), v.Stats.Total, v.AllStats.Total)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
