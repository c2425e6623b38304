package filter

import (
	"strings"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
)

// Predicate decides whether a record survives one criterion of a Spec.
type Predicate interface {
	Name() string
	Keep(r *scan.Record, now time.Time) bool
}

// Chain requires every predicate to keep a record.
type Chain struct {
	predicates []Predicate
}

// NewChain builds the risk, TLD and date predicates for spec.
func NewChain(spec Spec) *Chain {
	spec = spec.Normalize()
	return &Chain{predicates: []Predicate{
		riskPredicate{level: spec.Risk},
		tldPredicate{tld: spec.TLD},
		datePredicate{rng: spec.Date, custom: spec.Custom},
	}}
}

// Keep reports whether r passes every predicate. When it does not, the name
// of the first rejecting predicate is returned.
func (c *Chain) Keep(r *scan.Record, now time.Time) (bool, string) {
	for _, p := range c.predicates {
		if !p.Keep(r, now) {
			return false, p.Name()
		}
	}
	return true, ""
}

// Apply returns the records that pass spec, in their original order. It
// never modifies records and has no state, so equal inputs give equal
// outputs.
func Apply(records []*scan.Record, spec Spec, now time.Time) []*scan.Record {
	chain := NewChain(spec)
	out := make([]*scan.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if ok, _ := chain.Keep(r, now); ok {
			out = append(out, r)
		}
	}
	return out
}

// ExtractTLD returns the text after the last '.' in url, or "" when there is
// none. No parsing or case folding is done.
func ExtractTLD(url string) string {
	i := strings.LastIndex(url, ".")
	if i < 0 {
		return ""
	}
	return url[i+1:]
}

type riskPredicate struct {
	level RiskLevel
}

func (p riskPredicate) Name() string { return "risk_level" }

// A record without an ML prediction of 1 counts as safe here.
func (p riskPredicate) Keep(r *scan.Record, _ time.Time) bool {
	switch p.level {
	case RiskMalicious:
		return r.Malicious()
	case RiskSafe:
		return !r.Malicious()
	}
	return true
}

type tldPredicate struct {
	tld TLD
}

func (p tldPredicate) Name() string { return "tld" }

func (p tldPredicate) Keep(r *scan.Record, _ time.Time) bool {
	if p.tld == TLDAll {
		return true
	}
	got := ExtractTLD(r.URL)
	if p.tld == TLDOther {
		for _, known := range KnownTLDs {
			if got == string(known) {
				return false
			}
		}
		return true
	}
	return got == string(p.tld)
}

type datePredicate struct {
	rng    DateRange
	custom CustomRange
}

func (p datePredicate) Name() string { return "date_range" }

func (p datePredicate) Keep(r *scan.Record, now time.Time) bool {
	if p.rng == DateAll {
		return true
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	daysSince := now.Sub(ts).Hours() / 24

	switch p.rng {
	case DateToday:
		return daysSince <= 1
	case DateWeek:
		return daysSince <= 7
	case DateMonth:
		return daysSince <= 30
	case DateCustom:
		if p.custom.Start != nil && ts.Before(*p.custom.Start) {
			return false
		}
		if p.custom.End != nil && ts.After(*p.custom.End) {
			return false
		}
		return true
	}
	return true
}
