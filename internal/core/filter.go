package core

import (
	"strings"
	"time"
)

// RechargeFilter narrows a user's recharge listing. Zero values mean "no constraint".
type RechargeFilter struct {
	Location string // case-insensitive substring
	Notes    string // case-insensitive substring
	Exempt   *bool
	From     time.Time // inclusive
	Until    time.Time // inclusive
}

// Match reports whether r passes the filter. Storage backends without a query
// language filter with it directly.
func (f RechargeFilter) Match(r Recharge) bool {
	if f.Location != "" && !containsFold(r.Location, f.Location) {
		return false
	}
	if f.Notes != "" && !containsFold(r.Notes, f.Notes) {
		return false
	}
	if f.Exempt != nil && r.Exempt != *f.Exempt {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.Until.IsZero() && r.Date.After(f.Until) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// HistoryQuery is the raw form of the history filters as typed by the user.
type HistoryQuery struct {
	Location string
	Notes    string
	Exempt   string // "True", "False" or empty
	From     string // YYYY-MM-DD
	To       string // YYYY-MM-DD
	Period   string // "30d" overrides From/To
}

// Active reports whether any filter field was supplied, valid or not.
func (q HistoryQuery) Active() bool {
	return q.Location != "" || q.Notes != "" || q.Exempt != "" ||
		q.From != "" || q.To != "" || q.Period != ""
}

// Filter resolves the query relative to now. Unparseable dates are ignored.
func (q HistoryQuery) Filter(now time.Time) RechargeFilter {
	f := RechargeFilter{Location: q.Location, Notes: q.Notes}

	switch q.Exempt {
	case "True":
		v := true
		f.Exempt = &v
	case "False":
		v := false
		f.Exempt = &v
	}

	if q.Period == "30d" {
		f.From = now.AddDate(0, 0, -30)
		return f
	}
	if q.From != "" {
		if t, err := time.Parse(time.DateOnly, q.From); err == nil {
			f.From = t
		}
	}
	if q.To != "" {
		if t, err := time.Parse(time.DateOnly, q.To); err == nil {
			f.Until = t.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
	}
	return f
}

// ExemptChoice is the tri-state value of the exempt filter for form rendering.
func (q HistoryQuery) ExemptChoice() *bool {
	switch q.Exempt {
	case "True":
		v := true
		return &v
	case "False":
		v := false
		return &v
	}
	return nil
}
