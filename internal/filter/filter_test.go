package filter

import (
	"testing"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func mlRecord(id, url string, pred *int, ts time.Time) *scan.Record {
	r := &scan.Record{ID: id, URL: url, Timestamp: ts}
	if pred != nil {
		r.Filters.MachineLearning = &scan.MachineLearning{Prediction: pred}
	}
	return r
}

func ids(records []*scan.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(t *testing.T, got []*scan.Record, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, g)
		}
	}
}

func TestExtractTLD(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com", "com"},
		{"https://example.io", "io"},
		{"https://example.io.example", "example"},
		{"localhost", ""},
		{"https://EXAMPLE.COM", "COM"},
		{"https://example.com/path", "com/path"},
		{"http://10.0.0.1", "1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractTLD(tt.in); got != tt.want {
			t.Errorf("ExtractTLD(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestApply_RiskLevel(t *testing.T) {
	records := []*scan.Record{
		mlRecord("mal", "https://a.com", scan.Prediction(1), now),
		mlRecord("safe", "https://b.com", scan.Prediction(0), now),
		mlRecord("none", "https://c.com", nil, now),
		{ID: "nilpred", URL: "https://d.com", Filters: scan.Filters{MachineLearning: &scan.MachineLearning{}}},
	}

	equalIDs(t, Apply(records, Spec{Risk: RiskAll}, now), "mal", "safe", "none", "nilpred")
	equalIDs(t, Apply(records, Spec{Risk: RiskMalicious}, now), "mal")
	// records without a prediction of 1 default to safe
	equalIDs(t, Apply(records, Spec{Risk: RiskSafe}, now), "safe", "none", "nilpred")
}

func TestApply_TLD(t *testing.T) {
	records := []*scan.Record{
		{ID: "com", URL: "https://example.com"},
		{ID: "io", URL: "https://example.io"},
		{ID: "trick", URL: "https://example.io.example"},
		{ID: "upper", URL: "https://example.IO"},
		{ID: "bare", URL: "localhost"},
	}

	equalIDs(t, Apply(records, Spec{TLD: TLDIO}, now), "io")
	equalIDs(t, Apply(records, Spec{TLD: TLDCom}, now), "com")
	equalIDs(t, Apply(records, Spec{TLD: TLDOther}, now), "trick", "upper", "bare")
	equalIDs(t, Apply(records, Spec{TLD: TLDAll}, now), "com", "io", "trick", "upper", "bare")
}

func TestApply_DateRange(t *testing.T) {
	records := []*scan.Record{
		{ID: "hour", URL: "a", Timestamp: now.Add(-time.Hour)},
		{ID: "day", URL: "b", Timestamp: now.Add(-24 * time.Hour)},
		{ID: "3days", URL: "c", Timestamp: now.Add(-72 * time.Hour)},
		{ID: "20days", URL: "d", Timestamp: now.Add(-20 * 24 * time.Hour)},
		{ID: "40days", URL: "e", Timestamp: now.Add(-40 * 24 * time.Hour)},
		{ID: "unset", URL: "f"},
	}

	equalIDs(t, Apply(records, Spec{Date: DateToday}, now), "hour", "day", "unset")
	equalIDs(t, Apply(records, Spec{Date: DateWeek}, now), "hour", "day", "3days", "unset")
	equalIDs(t, Apply(records, Spec{Date: DateMonth}, now), "hour", "day", "3days", "20days", "unset")
	equalIDs(t, Apply(records, Spec{Date: DateAll}, now), "hour", "day", "3days", "20days", "40days", "unset")
}

func TestApply_CustomRange(t *testing.T) {
	records := []*scan.Record{
		{ID: "jan", URL: "a", Timestamp: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "feb", URL: "b", Timestamp: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "mar", URL: "c", Timestamp: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "unset", URL: "d"},
	}

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("both bounds inclusive", func(t *testing.T) {
		spec := Spec{Date: DateCustom, Custom: CustomRange{Start: &start, End: &end}}
		equalIDs(t, Apply(records, spec, now), "feb")
	})

	t.Run("start only", func(t *testing.T) {
		spec := Spec{Date: DateCustom, Custom: CustomRange{Start: &start}}
		equalIDs(t, Apply(records, spec, now), "feb", "mar", "unset")
	})

	t.Run("end only", func(t *testing.T) {
		spec := Spec{Date: DateCustom, Custom: CustomRange{End: &end}}
		equalIDs(t, Apply(records, spec, now), "jan", "feb")
	})

	t.Run("no bounds", func(t *testing.T) {
		spec := Spec{Date: DateCustom}
		equalIDs(t, Apply(records, spec, now), "jan", "feb", "mar", "unset")
	})

	t.Run("ignored unless custom", func(t *testing.T) {
		spec := Spec{Date: DateAll, Custom: CustomRange{Start: &start, End: &end}}
		equalIDs(t, Apply(records, spec, now), "jan", "feb", "mar", "unset")
	})
}

func TestApply_CustomEndCoversWholeDay(t *testing.T) {
	records := []*scan.Record{
		{ID: "next-day", URL: "a", Timestamp: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)},
		{ID: "late", URL: "b", Timestamp: time.Date(2026, 2, 10, 23, 59, 59, 0, time.UTC)},
		{ID: "noon", URL: "c", Timestamp: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)},
		{ID: "before", URL: "d", Timestamp: time.Date(2026, 2, 9, 18, 0, 0, 0, time.UTC)},
	}

	start, err := ParseDate("2026-02-10")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	end, err := ParseEndDate("2026-02-10")
	if err != nil {
		t.Fatalf("ParseEndDate: %v", err)
	}

	spec := Spec{Date: DateCustom, Custom: CustomRange{Start: &start, End: &end}}
	equalIDs(t, Apply(records, spec, now), "late", "noon")
}

func TestApply_CombinedAndIdempotent(t *testing.T) {
	records := []*scan.Record{
		mlRecord("mal-io-new", "https://x.io", scan.Prediction(1), now.Add(-time.Hour)),
		mlRecord("mal-io-old", "https://y.io", scan.Prediction(1), now.Add(-10*24*time.Hour)),
		mlRecord("safe-io-new", "https://z.io", scan.Prediction(0), now.Add(-time.Hour)),
		mlRecord("mal-com-new", "https://w.com", scan.Prediction(1), now.Add(-time.Hour)),
	}
	spec := Spec{Risk: RiskMalicious, TLD: TLDIO, Date: DateWeek}

	first := Apply(records, spec, now)
	second := Apply(records, spec, now)
	equalIDs(t, first, "mal-io-new")
	equalIDs(t, second, ids(first)...)

	if len(records) != 4 {
		t.Errorf("input slice must not be modified")
	}
}

func TestChain_ReportsRejectingPredicate(t *testing.T) {
	chain := NewChain(Spec{Risk: RiskMalicious, TLD: TLDCom})

	ok, reason := chain.Keep(mlRecord("r", "https://a.com", scan.Prediction(0), now), now)
	if ok || reason != "risk_level" {
		t.Errorf("expected risk_level rejection, got ok=%v reason=%q", ok, reason)
	}

	ok, reason = chain.Keep(mlRecord("r", "https://a.net", scan.Prediction(1), now), now)
	if ok || reason != "tld" {
		t.Errorf("expected tld rejection, got ok=%v reason=%q", ok, reason)
	}
}
