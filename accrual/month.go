package accrual

import (
	"time"
)

// =============================================================================
// MONTH KEY - YYYY-MM bucket for all monthly aggregation
// =============================================================================

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// MonthKey is the 7-character year-month prefix of a date. Lexicographic
// order of keys is chronological order.
type MonthKey string

func MonthOf(t time.Time) MonthKey {
	return MonthKey(t.Format(monthLayout))
}

// ParseMonthKey accepts "YYYY-MM" or any longer ISO date and keeps the prefix.
func ParseMonthKey(s string) (MonthKey, error) {
	if len(s) > len(monthLayout) {
		s = s[:len(monthLayout)]
	}
	if _, err := time.Parse(monthLayout, s); err != nil {
		return "", err
	}
	return MonthKey(s), nil
}

// Start returns the first day of the month in UTC.
func (m MonthKey) Start() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddMonths shifts the key by n months.
func (m MonthKey) AddMonths(n int) MonthKey {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

func (m MonthKey) String() string { return string(m) }

// StartOfMonth returns midnight UTC on the first day of t's month, using the
// calendar month as seen in t's own location.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// dateOnly drops the clock and zone so week-ending dates compare by calendar day.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
