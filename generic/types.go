/*
Package generic provides domain-agnostic primitives for the absence engine.

PURPOSE:
  Calendar arithmetic, the day classifier, decimal quantities, error types
  and the entity-store contract. Nothing here knows about employees or
  absences.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: decimal quantities of worked / not worked time
  - Round2: the single rounding rule for reported figures
  - Percent: ratio as a percentage, zero when the denominator is zero

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal avoids float drift when summing many days
  2. Purity: no I/O in this package except through Collection[T]

SEE ALSO:
  - calendar.go: Day classification
  - store.go: Collection interface
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred      = decimal.NewFromInt(100)
	minutesInHr  = decimal.NewFromInt(60)
	workdaysWeek = decimal.NewFromInt(5)
)

// DefaultWeeklyHours is used when an employee has no configured jornada.
const DefaultWeeklyHours = 40

// DailyHours derives the per-day figure from a weekly total.
// Non-positive input falls back to DefaultWeeklyHours.
func DailyHours(weeklyHours float64) decimal.Decimal {
	if weeklyHours <= 0 {
		weeklyHours = DefaultWeeklyHours
	}
	return decimal.NewFromFloat(weeklyHours).Div(workdaysWeek)
}

// HoursOf converts a duration to decimal hours at minute precision.
func HoursOf(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Minute)).Div(minutesInHr)
}

// Round2 rounds to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns part/whole*100, or zero when whole is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// Float returns the float64 form of d, for persisted denormalized fields.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
