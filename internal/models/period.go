// internal/models/period.go
package models

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is a calendar month in YYYY-MM form.
type Period string

func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return "", fmt.Errorf("period %q must be in YYYY-MM format", s)
	}
	return Period(t.Format(periodLayout)), nil
}

func (p Period) String() string {
	return string(p)
}

// Start returns the first day of the month at UTC midnight.
func (p Period) Start() time.Time {
	t, _ := time.Parse(periodLayout, string(p))
	return t.UTC()
}

// End returns the last day of the month at UTC midnight.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Compact returns the period as YYYYMM.
func (p Period) Compact() string {
	return p.Start().Format("200601")
}

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
