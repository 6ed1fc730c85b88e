package aggregate

import "time"

// Period selects the transactions an aggregation covers.
type Period interface {
	Contains(t time.Time) bool
}

// MonthPeriod matches timestamps whose calendar month and year, observed in
// Location, equal Year/Month. Nil Location means UTC.
type MonthPeriod struct {
	Year     int
	Month    time.Month
	Location *time.Location
}

func (p MonthPeriod) Contains(t time.Time) bool {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, _ := t.In(loc).Date()
	return y == p.Year && m == p.Month
}

// ThisMonth returns the calendar month containing now, in now's location.
func ThisMonth(now time.Time) MonthPeriod {
	return MonthPeriod{Year: now.Year(), Month: now.Month(), Location: now.Location()}
}

// PreviousMonth returns the calendar month before the one containing now.
func PreviousMonth(now time.Time) MonthPeriod {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return MonthPeriod{Year: prev.Year(), Month: prev.Month(), Location: now.Location()}
}

// RangePeriod matches Start <= t < End. A zero bound is open.
type RangePeriod struct {
	Start time.Time
	End   time.Time
}

func (p RangePeriod) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}
