// Package storage defines the scan archive: an append-only record of every
// submit outcome, kept for offline reporting. The archive is never read back
// into a session's history.
package storage

import (
	"context"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/google/uuid"
)

// Outcome says whether a submit produced a record.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one archived submit attempt.
type Entry struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	Outcome      Outcome       `json:"outcome"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	Verdict      scan.Verdict  `json:"verdict,omitempty"`
	Probability  float64       `json:"probability"`
	SimpleRisk   float64       `json:"simple_risk"`
	AdvancedRisk float64       `json:"advanced_risk"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewEntry builds an archive entry for a submit of url that returned rec or
// err after d.
func NewEntry(url string, rec *scan.Record, err error, d time.Duration, at time.Time) *Entry {
	e := &Entry{
		ID:        uuid.New().String(),
		URL:       url,
		Duration:  d,
		CreatedAt: at.UTC(),
	}

	if err != nil || rec == nil {
		e.Outcome = OutcomeFailure
		e.ErrorKind = scan.KindOf(err).String()
		e.Error = scan.Message(err)
		return e
	}

	e.Outcome = OutcomeSuccess
	e.ID = rec.ID
	e.URL = rec.URL
	e.Verdict = rec.Verdict()
	if ml := rec.Filters.MachineLearning; ml != nil {
		e.Probability = ml.Probability
	}
	if sh := rec.Filters.SimpleHeuristic; sh != nil {
		e.SimpleRisk = sh.RiskPercent
	}
	if ah := rec.Filters.AdvancedHeuristic; ah != nil {
		e.AdvancedRisk = ah.Risk
	}
	return e
}

// Filter allows querying for specific entries.
type Filter struct {
	URL       string
	Outcome   Outcome
	Malicious *bool
	Since     *time.Time
	Limit     int
	Offset    int
}

// Match reports whether e satisfies f, ignoring Limit and Offset.
func (f Filter) Match(e *Entry) bool {
	if f.URL != "" && e.URL != f.URL {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.Malicious != nil && (e.Verdict == scan.VerdictMalicious) != *f.Malicious {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to entries already in newest-first order.
func (f Filter) Page(entries []*Entry) []*Entry {
	if f.Offset > 0 {
		if f.Offset >= len(entries) {
			return []*Entry{}
		}
		entries = entries[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(entries) {
		entries = entries[:f.Limit]
	}
	return entries
}

// Backend defines the interface for archiving and querying entries.
type Backend interface {
	Save(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}
