package models

import (
	"fmt"
	"strings"
	"time"
)

// dayFormat is the canonical calendar-date layout used for cache keys,
// query parameters, and logging.
const dayFormat = "2006-01-02"

// Day is a calendar date with no time-of-day component. The zero value is
// not a valid date; use ParseDay, DayOf, or DayFromTimestamp to construct one.
type Day struct {
	year  int
	month time.Month
	day   int
}

// NewDay returns the Day for the given year, month, and day of month.
func NewDay(year int, month time.Month, day int) Day {
	return Day{year: year, month: month, day: day}
}

// ParseDay parses a date string in yyyy-MM-dd form.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayFormat, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// DayOf returns the wall-clock calendar date of t in t's own location.
// The instant is not converted to UTC first: an airing starting at
// 23:30+02:00 belongs to that local date.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{year: y, month: m, day: d}
}

// DayFromTimestamp derives the bucket date from a provider timestamp.
// Timestamps carry an offset (RFC 3339, optionally with fractional
// seconds); a bare yyyy-MM-dd string is also accepted.
func DayFromTimestamp(ts string) (Day, error) {
	s := strings.TrimSpace(ts)
	if !strings.Contains(s, "T") {
		return ParseDay(s)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return DayOf(t), nil
}

// String formats the day as yyyy-MM-dd.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// UTC returns the day's midnight instant in UTC.
func (d Day) UTC() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return DayOf(d.UTC().AddDate(0, 0, 1))
}

// After reports whether d is strictly after o.
func (d Day) After(o Day) bool {
	return d.UTC().After(o.UTC())
}

// IsZero reports whether d is the zero value rather than a real date.
func (d Day) IsZero() bool {
	return d == Day{}
}

// DaysBetween enumerates every calendar day from start to end inclusive.
// Returns nil when start is after end.
func DaysBetween(start, end Day) []Day {
	if start.After(end) {
		return nil
	}
	var days []Day
	for d := start; !d.After(end); d = d.Next() {
		days = append(days, d)
	}
	return days
}
