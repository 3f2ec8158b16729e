/*
calendar.go - Calendar classifier for workable vs excluded days

PURPOSE:
  Answers "should this day count?" for every calculation in the engine.
  A day is excluded when it is a weekend, a holiday, or falls inside a
  declared vacation period.

PURITY:
  The classifier never performs I/O. Callers pass reference data that was
  already fetched, so the same snapshot can be shared across many employees.

SEE ALSO:
  - period.go: Period.Contains used for vacation membership
  - absence/absenteeism.go: skips excluded days on both sides of the rate
  - absence/ledger.go: uses IsWorkday + InVacation separately
*/
package generic

import "time"

// IsExcluded reports whether day is a weekend, matches a holiday by calendar
// day, or falls within any vacation period (inclusive).
func IsExcluded(day time.Time, holidays []time.Time, vacations []Period) bool {
	if IsWeekend(day) {
		return true
	}
	for _, h := range holidays {
		if SameDay(h, day) {
			return true
		}
	}
	for _, v := range vacations {
		if v.Contains(day) {
			return true
		}
	}
	return false
}

// =============================================================================
// CALENDAR - Indexed form of the classifier for hot loops
// =============================================================================

type dayKey struct {
	year  int
	month time.Month
	day   int
}

func keyOf(t time.Time) dayKey {
	y, m, d := t.Date()
	return dayKey{year: y, month: m, day: d}
}

// Calendar is an immutable, indexed snapshot of holidays and vacation periods.
// It gives the same answers as IsExcluded with O(1) holiday lookups.
type Calendar struct {
	holidays  map[dayKey]struct{}
	vacations []Period
}

// NewCalendar builds a calendar. The input slices are copied.
func NewCalendar(holidays []time.Time, vacations []Period) *Calendar {
	c := &Calendar{
		holidays:  make(map[dayKey]struct{}, len(holidays)),
		vacations: append([]Period(nil), vacations...),
	}
	for _, h := range holidays {
		c.holidays[keyOf(h)] = struct{}{}
	}
	return c
}

// IsHoliday checks the day against the holiday set.
func (c *Calendar) IsHoliday(day time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.holidays[keyOf(day)]
	return ok
}

// InVacation reports whether the day falls within a declared vacation period.
func (c *Calendar) InVacation(day time.Time) bool {
	if c == nil {
		return false
	}
	for _, v := range c.vacations {
		if v.Contains(day) {
			return true
		}
	}
	return false
}

// IsWorkday is true for weekdays that are not holidays. Vacation is ignored.
func (c *Calendar) IsWorkday(day time.Time) bool {
	return !IsWeekend(day) && !c.IsHoliday(day)
}

// IsExcluded is the indexed equivalent of the package-level IsExcluded.
func (c *Calendar) IsExcluded(day time.Time) bool {
	return !c.IsWorkday(day) || c.InVacation(day)
}

// Vacations returns a copy of the vacation periods.
func (c *Calendar) Vacations() []Period {
	if c == nil {
		return nil
	}
	return append([]Period(nil), c.vacations...)
}
