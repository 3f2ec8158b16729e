/*
absenteeism.go - Absenteeism rate calculation

PURPOSE:
  Computes, for one employee and a day range, the hours not worked against
  the hours that should have been worked, and the resulting percentage.

ALGORITHM:
  dailyHours = num_horas_jornada / 5 (jornada defaults to 40)

  hoursNotWorked: for every absence intersecting the window, walk each day
  of the intersection. Excluded days (weekend, holiday, vacation) are
  skipped. The absence minutes inside [00:00, 23:59] of the day become
  hours; a full calendar day (>= 23h) costs dailyHours, anything else is
  clamped to dailyHours. The per-day total across overlapping absences is
  also clamped to dailyHours.

  hoursExpected: dailyHours for every non-excluded day of the window.

  rate = hoursNotWorked / hoursExpected * 100, or 0 when nothing is expected.
  All three figures are rounded to 2 decimals.

OPEN ABSENCES:
  An absence with unknown end is assumed ongoing through the window end.

BAD DATA:
  Absences whose dates do not parse are skipped and logged, never fatal.

SEE ALSO:
  - aggregate.go: Organization and department fan-out
  - generic/calendar.go: Day classification
*/
package absence

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/absence-engine/generic"
)

// fullDayHours is the threshold above which an absence counts as the whole day.
var fullDayHours = decimal.NewFromInt(23)

// AbsenteeismResult is the outcome for one employee over one window.
type AbsenteeismResult struct {
	EmployeeID     string
	Window         generic.Period
	DailyHours     decimal.Decimal
	HoursNotWorked decimal.Decimal
	HoursExpected  decimal.Decimal
	Rate           decimal.Decimal

	// Skipped lists absence ids ignored because their dates were unusable.
	Skipped []string
}

// ComputeAbsenteeism is the pure calculation. It never performs I/O.
func ComputeAbsenteeism(emp Employee, absences []Absence, cal *generic.Calendar, window generic.Period, loc *time.Location) AbsenteeismResult {
	if loc == nil {
		loc = time.UTC
	}
	daily := generic.DailyHours(emp.HorasJornada)
	winStart := generic.DayOf(window.Start.In(loc))
	winEnd := generic.EndOfDay(window.End.In(loc))

	res := AbsenteeismResult{
		EmployeeID: emp.ID,
		Window:     generic.Period{Start: winStart, End: generic.DayOf(winEnd)},
		DailyHours: daily,
	}

	perDay := make(map[time.Time]decimal.Decimal)
	for _, a := range absences {
		if a.EmployeeID != emp.ID {
			continue
		}
		iv, err := a.Interval(loc, winEnd)
		if err != nil {
			res.Skipped = append(res.Skipped, a.ID)
			continue
		}
		if iv.Empty() {
			continue
		}
		clipped := generic.Interval{
			Start: generic.MaxTime(iv.Start, winStart),
			End:   generic.MinTime(iv.End, winEnd),
		}
		if clipped.End.Before(clipped.Start) {
			continue
		}
		clipped.Days().EachDay(func(day time.Time) {
			if cal.IsExcluded(day) {
				return
			}
			dayIv := generic.Interval{Start: day, End: generic.EndOfDay(day)}
			hours := generic.HoursOf(dayIv.Overlap(clipped))
			if hours.GreaterThanOrEqual(fullDayHours) {
				hours = daily
			}
			perDay[day] = generic.MinDecimal(perDay[day].Add(hours), daily)
		})
	}

	notWorked := decimal.Zero
	for _, h := range perDay {
		notWorked = notWorked.Add(h)
	}

	expected := decimal.Zero
	res.Window.EachDay(func(day time.Time) {
		if !cal.IsExcluded(day) {
			expected = expected.Add(daily)
		}
	})

	res.HoursNotWorked = generic.Round2(notWorked)
	res.HoursExpected = generic.Round2(expected)
	res.Rate = generic.Round2(generic.Percent(notWorked, expected))
	return res
}

// =============================================================================
// CALCULATOR SERVICE
// =============================================================================

// AbsenteeismCalculator wires the pure calculation to the store.
type AbsenteeismCalculator struct {
	store *Store
	cfg   settings
	sf    singleflight.Group
}

func NewAbsenteeismCalculator(store *Store, opts ...Option) *AbsenteeismCalculator {
	return &AbsenteeismCalculator{
		store: store,
		cfg:   newSettings("absence.absenteeism", opts),
	}
}

// ForEmployee computes the rate for one employee. ref is the preloaded batch
// snapshot; when nil the calculator fetches what it needs (standalone mode).
// Returns nil, nil when the employee does not exist.
func (c *AbsenteeismCalculator) ForEmployee(ctx context.Context, employeeID string, window generic.Period, ref *Reference) (*AbsenteeismResult, error) {
	var (
		emp      Employee
		absences []Absence
		cal      *generic.Calendar
	)

	if ref != nil {
		e, ok := ref.Employee(employeeID)
		if !ok {
			return nil, nil
		}
		emp, absences, cal = e, ref.AbsencesOf(employeeID), ref.Calendar()
	} else {
		e, err := c.store.Employees.Get(ctx, employeeID)
		if err != nil {
			return nil, fmt.Errorf("get employee %s: %w", employeeID, err)
		}
		if e == nil {
			return nil, nil
		}
		absences, err = c.store.Absences.Filter(ctx, generic.Criteria{"employee_id": employeeID})
		if err != nil {
			return nil, fmt.Errorf("list absences of %s: %w", employeeID, err)
		}
		cal, err = c.standaloneCalendar(ctx)
		if err != nil {
			return nil, err
		}
		emp = *e
	}

	res := ComputeAbsenteeism(emp, absences, cal, window, c.cfg.loc)
	for _, id := range res.Skipped {
		c.cfg.logger.Warn("absence skipped: unusable dates",
			zap.String("employee_id", employeeID),
			zap.String("absence_id", id),
		)
	}
	return &res, nil
}

// standaloneCalendar fetches holidays + vacations once for all concurrent
// standalone callers. The shared fetch is detached from any one caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (c *AbsenteeismCalculator) standaloneCalendar(ctx context.Context) (*generic.Calendar, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan("calendar", func() (interface{}, error) {
		vacations, err := c.store.Vacations.List(shared, generic.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list vacations: %w", err)
		}
		holidays, err := c.store.Holidays.List(shared, generic.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list holidays: %w", err)
		}
		ref := NewReference(nil, nil, nil, vacations, holidays, c.cfg.loc)
		return ref.Calendar(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*generic.Calendar), nil
	}
}

// YearToDate is Jan 1 of the current year through today.
func (c *AbsenteeismCalculator) YearToDate() generic.Period {
	today := c.cfg.today()
	return generic.Period{Start: generic.StartOfYear(today.Year(), c.cfg.loc), End: today}
}

// RefreshEmployeeStats recomputes the year-to-date figures and writes them
// onto the employee record. Returns nil, nil when the employee is missing.
func (c *AbsenteeismCalculator) RefreshEmployeeStats(ctx context.Context, employeeID string, ref *Reference) (*AbsenteeismResult, error) {
	res, err := c.ForEmployee(ctx, employeeID, c.YearToDate(), ref)
	if err != nil || res == nil {
		return res, err
	}
	if err := c.writeStats(ctx, *res); err != nil {
		return nil, err
	}
	return res, nil
}

// RefreshAllEmployeeStats recomputes year-to-date figures for everybody from
// one snapshot. Reads fan out; writes are sequential.
func (c *AbsenteeismCalculator) RefreshAllEmployeeStats(ctx context.Context) (int, error) {
	ref, err := LoadReference(ctx, c.store, c.cfg.loc)
	if err != nil {
		return 0, err
	}
	window := c.YearToDate()
	units, err := c.fanOut(ctx, window, ref, employeeIDs(ref.Employees))
	if err != nil {
		return 0, err
	}

	written := 0
	for _, u := range units {
		if u.err != nil {
			continue
		}
		if err := c.writeStats(ctx, u.result); err != nil {
			c.cfg.logger.Error("write absenteeism stats failed",
				zap.String("employee_id", u.employeeID),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	c.cfg.logger.Info("absenteeism stats refreshed",
		zap.Int("employees", len(ref.Employees)),
		zap.Int("written", written),
	)
	return written, nil
}

func (c *AbsenteeismCalculator) writeStats(ctx context.Context, res AbsenteeismResult) error {
	emp, err := c.store.Employees.Get(ctx, res.EmployeeID)
	if err != nil {
		return fmt.Errorf("get employee %s: %w", res.EmployeeID, err)
	}
	if emp == nil {
		return &generic.NotFoundError{Collection: CollectionEmployees, ID: res.EmployeeID}
	}
	emp.TasaAbsentismo = generic.Float(res.Rate)
	emp.HorasNoTrabajadas = generic.Float(res.HoursNotWorked)
	emp.HorasDeberiaTrabajar = generic.Float(res.HoursExpected)
	emp.UltimoCalculo = c.cfg.now().In(c.cfg.loc).Format(time.RFC3339)
	if _, err := c.store.Employees.Update(ctx, emp.ID, *emp); err != nil {
		return fmt.Errorf("update employee %s: %w", emp.ID, err)
	}
	return nil
}

func employeeIDs(employees []Employee) []string {
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}
	return ids
}
