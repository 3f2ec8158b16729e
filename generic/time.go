package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CALENDAR DAYS - Date-only arithmetic on time.Time
// =============================================================================

// DayOf truncates t to midnight of its calendar day, in t's own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// SameDay compares two instants by calendar day only.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func StartOfYear(year int, loc *time.Location) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
}

func EndOfYear(year int, loc *time.Location) time.Time {
	return time.Date(year, time.December, 31, 23, 59, 59, 0, loc)
}

func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// PARSING - User-entered timestamps
// =============================================================================

// DateLayout is the canonical date-only layout.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a user-entered timestamp. RFC3339 values keep their
// offset and are converted to loc; naive values are read in loc.
//
// dateOnly reports whether the input carried no time of day, which callers use
// to treat an end value as inclusive of the whole day.
func ParseTimestamp(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseDay parses a value and truncates it to its calendar day.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	t, _, err := ParseTimestamp(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return DayOf(t), nil
}
