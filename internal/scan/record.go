// Package scan holds the records produced by the remote scanning service and
// the error taxonomy shared by everything that submits scans.
package scan

import (
	"encoding/json"
	"time"
)

// Filter names as they appear in the service's "filters" object.
const (
	FilterSimpleHeuristic   = "simple_heuristic"
	FilterAdvancedHeuristic = "advanced_heuristic"
	FilterMachineLearning   = "machine_learning"
)

// Record is one completed remote evaluation of a URL. Records are never
// modified after they are handed to the history store.
type Record struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Timestamp time.Time     `json:"timestamp"`
	Filters   Filters       `json:"filters"`
	Duration  time.Duration `json:"duration"`
}

// Filters carries the per-filter verdicts. Any of them may be missing when
// the service skipped or failed that filter.
type Filters struct {
	SimpleHeuristic   *SimpleHeuristic   `json:"simple_heuristic,omitempty"`
	AdvancedHeuristic *AdvancedHeuristic `json:"advanced_heuristic,omitempty"`
	MachineLearning   *MachineLearning   `json:"machine_learning,omitempty"`
}

// SimpleHeuristic is the pattern-count filter.
type SimpleHeuristic struct {
	RiskPercent float64 `json:"risk_percent"`
	Result      string  `json:"result"`
}

// Suspicious mirrors the threshold the service uses for its own verdict.
func (s *SimpleHeuristic) Suspicious() bool {
	return s != nil && s.RiskPercent > 50
}

// AdvancedHeuristic is the weighted keyword/TLD/structure filter.
type AdvancedHeuristic struct {
	Risk           float64  `json:"risk"`
	Classification string   `json:"classification"`
	Reasons        []string `json:"reasons"`
}

func (a *AdvancedHeuristic) Suspicious() bool {
	return a != nil && a.Risk >= 50
}

// MachineLearning is the classifier verdict. Prediction is nil when the
// model could not produce one.
type MachineLearning struct {
	Prediction     *int    `json:"prediction"`
	Classification string  `json:"classification"`
	Probability    float64 `json:"probability"`
	Error          string  `json:"error,omitempty"`
}

// UnmarshalJSON accepts any JSON number for prediction. Only 0 and 1 are
// kept; any other value leaves Prediction nil.
func (m *MachineLearning) UnmarshalJSON(data []byte) error {
	type plain MachineLearning
	var aux struct {
		plain
		Prediction json.RawMessage `json:"prediction"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = MachineLearning(aux.plain)
	m.Prediction = nil

	var f *float64
	if len(aux.Prediction) > 0 && json.Unmarshal(aux.Prediction, &f) == nil && f != nil {
		switch *f {
		case 0:
			m.Prediction = Prediction(0)
		case 1:
			m.Prediction = Prediction(1)
		}
	}
	return nil
}

// Verdict is the ML classification of a record.
type Verdict string

const (
	VerdictMalicious Verdict = "malicious"
	VerdictSafe      Verdict = "safe"
	VerdictUnknown   Verdict = "unknown"
)

// Verdict reports malicious only for prediction 1 and safe only for
// prediction 0. A missing filter or any other prediction is unknown.
func (r *Record) Verdict() Verdict {
	if r == nil || r.Filters.MachineLearning == nil || r.Filters.MachineLearning.Prediction == nil {
		return VerdictUnknown
	}
	switch *r.Filters.MachineLearning.Prediction {
	case 1:
		return VerdictMalicious
	case 0:
		return VerdictSafe
	}
	return VerdictUnknown
}

// Malicious reports whether the ML filter predicted 1.
func (r *Record) Malicious() bool {
	return r.Verdict() == VerdictMalicious
}

// Safe reports whether the ML filter predicted 0.
func (r *Record) Safe() bool {
	return r.Verdict() == VerdictSafe
}

// Prediction is a convenience for building ML filter values.
func Prediction(v int) *int {
	return &v
}
