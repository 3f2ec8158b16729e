package generic

import "time"

// =============================================================================
// PERIOD - Inclusive interval of calendar days
// =============================================================================

// Period is an inclusive range of calendar days. Start and End are compared
// by day, so the time of day on either bound is irrelevant.
//
// Examples:
//   - A collective vacation: Aug 1 - Aug 15
//   - A reporting window: Jan 1 - today
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period from two instants, truncating both to days.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: DayOf(start), End: DayOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if the day of t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := DayOf(t)
	return !d.Before(DayOf(p.Start)) && !d.After(DayOf(p.End))
}

// Intersect returns the overlap of two periods.
func (p Period) Intersect(other Period) (Period, bool) {
	start := MaxTime(DayOf(p.Start), DayOf(other.Start))
	end := MinTime(DayOf(p.End), DayOf(other.End))
	if end.Before(start) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// Days returns all days in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	p.EachDay(func(d time.Time) {
		days = append(days, d)
	})
	return days
}

// EachDay calls fn for every day in the period, in order.
func (p Period) EachDay(fn func(day time.Time)) {
	end := DayOf(p.End)
	for d := DayOf(p.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

// Len returns the number of calendar days in the period.
func (p Period) Len() int {
	n := 0
	p.EachDay(func(time.Time) { n++ })
	return n
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// =============================================================================
// INTERVAL - Timestamped range, used for partial-day proration
// =============================================================================

// Interval is a closed range of instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlap returns the duration shared by two intervals, zero if disjoint.
func (i Interval) Overlap(other Interval) time.Duration {
	start := MaxTime(i.Start, other.Start)
	end := MinTime(i.End, other.End)
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Empty reports whether the interval ends before it starts.
func (i Interval) Empty() bool {
	return i.End.Before(i.Start)
}

// Covers reports whether t lies within [Start, End].
func (i Interval) Covers(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// Days returns the calendar-day period spanned by the interval.
func (i Interval) Days() Period {
	return Period{Start: DayOf(i.Start), End: DayOf(i.End)}
}
