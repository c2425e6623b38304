package report

import (
	"strconv"

	"github.com/FranksOps/vigil/internal/scan"
)

// Stats are the detection counters for a set of records. Malicious and Safe
// only count records with an ML prediction of 1 or 0 respectively, so their
// sum can be less than Total.
type Stats struct {
	Total         int    `json:"total"`
	Malicious     int    `json:"malicious"`
	Safe          int    `json:"safe"`
	DetectionRate string `json:"detection_rate"`
}

// Summarize counts records by ML verdict. DetectionRate is the malicious
// share as a percentage with one decimal, or "0" for an empty set.
func Summarize(records []*scan.Record) Stats {
	s := Stats{DetectionRate: "0"}

	for _, r := range records {
		if r == nil {
			continue
		}
		s.Total++
		switch r.Verdict() {
		case scan.VerdictMalicious:
			s.Malicious++
		case scan.VerdictSafe:
			s.Safe++
		}
	}

	if s.Total > 0 {
		s.DetectionRate = strconv.FormatFloat(float64(s.Malicious)/float64(s.Total)*100, 'f', 1, 64)
	}
	return s
}
