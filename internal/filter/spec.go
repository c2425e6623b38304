// Package filter evaluates a filter specification against scan records.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel selects records by their ML verdict.
type RiskLevel string

const (
	RiskAll       RiskLevel = "all"
	RiskMalicious RiskLevel = "malicious"
	RiskSafe      RiskLevel = "safe"
)

// TLD selects records by the text after the last dot of their URL.
type TLD string

const (
	TLDAll   TLD = "all"
	TLDCom   TLD = "com"
	TLDOrg   TLD = "org"
	TLDNet   TLD = "net"
	TLDIO    TLD = "io"
	TLDEdu   TLD = "edu"
	TLDGov   TLD = "gov"
	TLDOther TLD = "other"
)

// KnownTLDs are the domains that have their own option; everything else is
// "other".
var KnownTLDs = []TLD{TLDCom, TLDOrg, TLDNet, TLDIO, TLDEdu, TLDGov}

// DateRange selects records by capture time.
type DateRange string

const (
	DateAll    DateRange = "all"
	DateToday  DateRange = "today"
	DateWeek   DateRange = "week"
	DateMonth  DateRange = "month"
	DateCustom DateRange = "custom"
)

// CustomRange bounds are inclusive. A nil bound imposes no constraint.
// Only consulted when the date range is DateCustom.
type CustomRange struct {
	Start *time.Time `json:"start_date,omitempty"`
	End   *time.Time `json:"end_date,omitempty"`
}

// Spec is one filter configuration. The zero value keeps everything.
type Spec struct {
	Risk   RiskLevel   `json:"risk_level"`
	TLD    TLD         `json:"tld"`
	Date   DateRange   `json:"date_range"`
	Custom CustomRange `json:"custom_range"`
}

// DefaultSpec returns a spec that keeps every record.
func DefaultSpec() Spec {
	return Spec{Risk: RiskAll, TLD: TLDAll, Date: DateAll}
}

// Normalize replaces empty fields with their "all" value.
func (s Spec) Normalize() Spec {
	if s.Risk == "" {
		s.Risk = RiskAll
	}
	if s.TLD == "" {
		s.TLD = TLDAll
	}
	if s.Date == "" {
		s.Date = DateAll
	}
	return s
}

// Update is a partial change to a Spec; nil fields are left alone.
type Update struct {
	Risk *RiskLevel `json:"risk_level,omitempty"`
	TLD  *TLD       `json:"tld,omitempty"`
	Date *DateRange `json:"date_range,omitempty"`
}

// Apply returns s with u merged in. Values are stored in canonical form
// ("MALICIOUS" becomes "malicious", ".io" becomes "io"); a value that does
// not parse leaves the field unchanged, so callers should Validate first.
func (u Update) Apply(s Spec) Spec {
	if u.Risk != nil {
		if v, err := ParseRiskLevel(string(*u.Risk)); err == nil {
			s.Risk = v
		}
	}
	if u.TLD != nil {
		if v, err := ParseTLD(string(*u.TLD)); err == nil {
			s.TLD = v
		}
	}
	if u.Date != nil {
		if v, err := ParseDateRange(string(*u.Date)); err == nil {
			s.Date = v
		}
	}
	return s.Normalize()
}

// Validate rejects values outside the known option sets.
func (u Update) Validate() error {
	if u.Risk != nil {
		if _, err := ParseRiskLevel(string(*u.Risk)); err != nil {
			return err
		}
	}
	if u.TLD != nil {
		if _, err := ParseTLD(string(*u.TLD)); err != nil {
			return err
		}
	}
	if u.Date != nil {
		if _, err := ParseDateRange(string(*u.Date)); err != nil {
			return err
		}
	}
	return nil
}

// CustomUpdate is a partial change to a CustomRange. Clear flags win over a
// value for the same bound.
type CustomUpdate struct {
	Start      *time.Time
	End        *time.Time
	ClearStart bool
	ClearEnd   bool
}

// Apply returns r with u merged in.
func (u CustomUpdate) Apply(r CustomRange) CustomRange {
	if u.Start != nil {
		v := *u.Start
		r.Start = &v
	}
	if u.End != nil {
		v := *u.End
		r.End = &v
	}
	if u.ClearStart {
		r.Start = nil
	}
	if u.ClearEnd {
		r.End = nil
	}
	return r
}

// ParseRiskLevel accepts the option names case-insensitively; "" is "all".
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch v := RiskLevel(strings.ToLower(strings.TrimSpace(s))); v {
	case "", RiskAll:
		return RiskAll, nil
	case RiskMalicious, RiskSafe:
		return v, nil
	}
	return "", fmt.Errorf("unknown risk level %q (want all, malicious or safe)", s)
}

// ParseTLD accepts the option names with or without a leading dot.
func ParseTLD(s string) (TLD, error) {
	v := TLD(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	switch v {
	case "", TLDAll:
		return TLDAll, nil
	case TLDOther:
		return v, nil
	}
	for _, known := range KnownTLDs {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown tld %q (want all, com, org, net, io, edu, gov or other)", s)
}

// ParseDateRange accepts the option names case-insensitively.
func ParseDateRange(s string) (DateRange, error) {
	switch v := DateRange(strings.ToLower(strings.TrimSpace(s))); v {
	case "", DateAll:
		return DateAll, nil
	case DateToday, DateWeek, DateMonth, DateCustom:
		return v, nil
	}
	return "", fmt.Errorf("unknown date range %q (want all, today, week, month or custom)", s)
}

// ParseDate reads a custom range bound. Plain dates are midnight UTC, the
// same instant a browser date input produces.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// ParseEndDate reads an upper custom range bound. A plain date covers that
// whole day, so it becomes the last instant before the next midnight UTC.
func ParseEndDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return ParseDate(s)
}
