/*
ledger.go - Vacation-pending balance ledger

PURPOSE:
  Maintains, per employee and year, the days an employee missed on a
  protected absence type while vacation was in effect. Those days were not
  consumed as vacation and are credited back as pending vacation.

ROW SHAPE:
  dias_pendientes   = sum of dias_coincidentes over detalle_ausencias
  dias_consumidos   = drawn down by Consume
  dias_disponibles  = pendientes - consumidos (never negative)
  detalle_ausencias = one entry per source absence, keyed by absence id

CRITICAL INVARIANT:
  An absence's effect is replace/remove by absence id, never accumulation.
  dias_pendientes is always recomputed from the detail list, so calling
  Calculate any number of times for the same absence yields the same row.

COINCIDENT DAY:
  A day of the absence (up to today) that is not a weekend, not a holiday,
  and falls within a global vacation period or one of the employee's own
  vacation-type absences (other than the absence itself). Each coincident
  day is attributed to the first candidate period that contains it.

SKIP-UNLESS-CHANGED:
  When the recomputed row equals the stored one, nothing is written.

SEE ALSO:
  - recalculate.go: Full rebuild built on Calculate with SkipSync
  - lifecycle.go: Per-mutation calls
*/
package absence

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/generic"
)

// LedgerInput is the reference data for one Calculate call.
type LedgerInput struct {
	Vacations                []Vacation
	Holidays                 []Holiday
	EmployeeVacationAbsences []Absence
}

// LedgerInputFor extracts the ledger input of one employee from a snapshot.
func (r *Reference) LedgerInputFor(employeeID string) LedgerInput {
	return LedgerInput{
		Vacations:                r.Vacations,
		Holidays:                 r.Holidays,
		EmployeeVacationAbsences: r.VacationAbsencesOf(employeeID),
	}
}

// CalcOptions tune a Calculate call.
type CalcOptions struct {
	// SkipSync defers propagation to the employee record (bulk mode).
	SkipSync bool
}

// LedgerUpdate describes what a ledger call did.
type LedgerUpdate struct {
	Balance *VacationPendingBalance // state after the call; nil if the row was deleted
	Written bool                    // a create or update happened
	Deleted bool                    // the row was deleted
	Sync    SideEffect              // propagation to the employee record
}

// Ledger maintains VacationPendingBalance rows.
type Ledger struct {
	store *Store
	cfg   settings
}

func NewLedger(store *Store, opts ...Option) *Ledger {
	return &Ledger{store: store, cfg: newSettings("absence.ledger", opts)}
}

// =============================================================================
// PURE CALCULATION
// =============================================================================

// ComputeCoincidence returns the detail entry an absence contributes, the
// year of its row, or nil when it contributes nothing.
func ComputeCoincidence(a Absence, t AbsenceType, in LedgerInput, today time.Time, loc *time.Location) (*BalanceDetail, int, error) {
	if !t.ProtectsVacation() {
		return nil, 0, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	today = generic.DayOf(today.In(loc))

	iv, err := a.Interval(loc, generic.EndOfDay(today))
	if err != nil {
		return nil, 0, fmt.Errorf("absence %s: %w", a.ID, err)
	}
	if iv.Empty() {
		return nil, 0, nil
	}
	start := generic.DayOf(iv.Start)
	end := generic.MinTime(generic.DayOf(iv.End), today)
	if end.Before(start) {
		return nil, 0, nil
	}

	candidates, _ := vacationPeriods(sortedVacations(in.Vacations, loc), loc)
	for _, own := range in.EmployeeVacationAbsences {
		if own.ID == a.ID {
			continue
		}
		ownIv, err := own.Interval(loc, generic.EndOfDay(today))
		if err != nil || ownIv.Empty() {
			continue
		}
		candidates = append(candidates, namedPeriod{name: ownVacationLabel(own), period: ownIv.Days()})
	}
	holidays, _ := holidayDays(in.Holidays, loc)
	cal := generic.NewCalendar(holidays, nil)

	credits := make([]int, len(candidates))
	total := 0
	generic.Period{Start: start, End: end}.EachDay(func(day time.Time) {
		if !cal.IsWorkday(day) {
			return
		}
		for i, c := range candidates {
			if c.period.Contains(day) {
				credits[i]++
				total++
				return
			}
		}
	})
	if total == 0 {
		return nil, 0, nil
	}

	detail := &BalanceDetail{
		AbsenceID:        a.ID,
		Tipo:             t.Nombre,
		FechaInicio:      a.FechaInicio,
		DiasCoincidentes: total,
	}
	if !a.IsOpen() {
		detail.FechaFin = a.FechaFin
	}
	for i, c := range candidates {
		if credits[i] == 0 {
			continue
		}
		detail.Periodos = append(detail.Periodos, PeriodCredit{
			Nombre:      c.name,
			FechaInicio: c.period.Start.Format(generic.DateLayout),
			FechaFin:    c.period.End.Format(generic.DateLayout),
			Dias:        credits[i],
		})
	}
	return detail, iv.Start.Year(), nil
}

func ownVacationLabel(a Absence) string {
	if a.Tipo != "" {
		return a.Tipo
	}
	return "vacaciones " + a.ID
}

// sortedVacations orders global periods by start date; unparseable ones sort last.
func sortedVacations(vacations []Vacation, loc *time.Location) []Vacation {
	out := append([]Vacation(nil), vacations...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, erri := out[i].Period(loc)
		pj, errj := out[j].Period(loc)
		if erri != nil || errj != nil {
			return erri == nil
		}
		return pi.Start.Before(pj.Start)
	})
	return out
}

// =============================================================================
// DETAIL MAP - Upsert / remove by absence id
// =============================================================================

func detailIndex(details []BalanceDetail) map[string]int {
	idx := make(map[string]int, len(details))
	for i, d := range details {
		idx[d.AbsenceID] = i
	}
	return idx
}

// upsertDetail replaces the entry for d.AbsenceID or adds it.
// Returns false when the stored entry was already identical.
func upsertDetail(row *VacationPendingBalance, d BalanceDetail) bool {
	if i, ok := detailIndex(row.Detalle)[d.AbsenceID]; ok {
		if reflect.DeepEqual(row.Detalle[i], d) {
			return false
		}
		row.Detalle[i] = d
	} else {
		row.Detalle = append(row.Detalle, d)
	}
	sortDetails(row.Detalle)
	return true
}

// removeDetail drops the entry for absenceID. Returns false if absent.
func removeDetail(row *VacationPendingBalance, absenceID string) bool {
	i, ok := detailIndex(row.Detalle)[absenceID]
	if !ok {
		return false
	}
	row.Detalle = append(row.Detalle[:i:i], row.Detalle[i+1:]...)
	return true
}

func sortDetails(details []BalanceDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].FechaInicio != details[j].FechaInicio {
			return details[i].FechaInicio < details[j].FechaInicio
		}
		return details[i].AbsenceID < details[j].AbsenceID
	})
}

// recomputeTotals restores the row invariants from the detail list.
// Returns true when consumed had to be clamped to pending.
func recomputeTotals(row *VacationPendingBalance) bool {
	pending := 0
	for _, d := range row.Detalle {
		pending += d.DiasCoincidentes
	}
	row.DiasPendientes = pending
	clamped := false
	if row.DiasConsumidos > pending {
		row.DiasConsumidos = pending
		clamped = true
	}
	if row.DiasConsumidos < 0 {
		row.DiasConsumidos = 0
	}
	row.DiasDisponibles = row.DiasPendientes - row.DiasConsumidos
	return clamped
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// Calculate upserts the absence's contribution into its employee/year row.
// Returns nil, nil when the type does not protect vacation or no day
// coincides with vacation.
func (l *Ledger) Calculate(ctx context.Context, a Absence, t AbsenceType, in LedgerInput, opts CalcOptions) (*LedgerUpdate, error) {
	detail, year, err := ComputeCoincidence(a, t, in, l.cfg.today(), l.cfg.loc)
	if err != nil || detail == nil {
		return nil, err
	}

	row, err := l.row(ctx, a.EmployeeID, year)
	if err != nil {
		return nil, err
	}

	update := &LedgerUpdate{}
	if row == nil {
		fresh := VacationPendingBalance{EmployeeID: a.EmployeeID, Anio: year}
		upsertDetail(&fresh, *detail)
		recomputeTotals(&fresh)
		created, err := l.store.Balances.Create(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("create balance %s/%d: %w", a.EmployeeID, year, err)
		}
		update.Balance, update.Written = &created, true
	} else {
		before := *row
		before.Detalle = append([]BalanceDetail(nil), row.Detalle...)

		upsertDetail(row, *detail)
		l.recompute(row)
		if !reflect.DeepEqual(before, *row) {
			saved, err := l.store.Balances.Update(ctx, row.ID, *row)
			if err != nil {
				return nil, fmt.Errorf("update balance %s: %w", row.ID, err)
			}
			row, update.Written = &saved, true
		}
		update.Balance = row
	}

	if !opts.SkipSync {
		update.Sync = l.syncEffect(ctx, a.EmployeeID)
	}
	return update, nil
}

// Remove drops one absence from the employee's row for year. The row is
// deleted when no detail remains. The employee total is always re-propagated.
func (l *Ledger) Remove(ctx context.Context, absenceID, employeeID string, year int) (*LedgerUpdate, error) {
	row, err := l.row(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	update := &LedgerUpdate{Balance: row}
	if row != nil {
		if err := l.removeFrom(ctx, row, absenceID, update); err != nil {
			return nil, err
		}
	}
	update.Sync = l.syncEffect(ctx, employeeID)
	return update, nil
}

// RemoveAbsence drops the absence from every year row of the employee.
// Used when the absence's start year is unknown or has changed.
func (l *Ledger) RemoveAbsence(ctx context.Context, absenceID, employeeID string, opts CalcOptions) (*LedgerUpdate, error) {
	rows, err := l.Balances(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	update := &LedgerUpdate{}
	for i := range rows {
		if _, ok := detailIndex(rows[i].Detalle)[absenceID]; !ok {
			continue
		}
		row := rows[i]
		if err := l.removeFrom(ctx, &row, absenceID, update); err != nil {
			return nil, err
		}
	}
	if !opts.SkipSync {
		update.Sync = l.syncEffect(ctx, employeeID)
	}
	return update, nil
}

func (l *Ledger) removeFrom(ctx context.Context, row *VacationPendingBalance, absenceID string, update *LedgerUpdate) error {
	if !removeDetail(row, absenceID) {
		return nil
	}
	if len(row.Detalle) == 0 {
		if err := l.store.Balances.Delete(ctx, row.ID); err != nil {
			return fmt.Errorf("delete balance %s: %w", row.ID, err)
		}
		update.Balance, update.Deleted, update.Written = nil, true, true
		return nil
	}
	l.recompute(row)
	saved, err := l.store.Balances.Update(ctx, row.ID, *row)
	if err != nil {
		return fmt.Errorf("update balance %s: %w", row.ID, err)
	}
	update.Balance, update.Written = &saved, true
	return nil
}

func (l *Ledger) recompute(row *VacationPendingBalance) {
	if recomputeTotals(row) {
		l.cfg.logger.Warn("consumed days clamped to pending",
			zap.String("employee_id", row.EmployeeID),
			zap.Int("anio", row.Anio),
			zap.Int("dias_pendientes", row.DiasPendientes),
		)
	}
}

// Balances returns the employee's rows, oldest year first.
func (l *Ledger) Balances(ctx context.Context, employeeID string) ([]VacationPendingBalance, error) {
	rows, err := l.store.Balances.Filter(ctx, generic.Criteria{"employee_id": employeeID})
	if err != nil {
		return nil, fmt.Errorf("list balances of %s: %w", employeeID, err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Anio < rows[j].Anio })
	return rows, nil
}

func (l *Ledger) row(ctx context.Context, employeeID string, year int) (*VacationPendingBalance, error) {
	rows, err := l.store.Balances.Filter(ctx, generic.Criteria{"employee_id": employeeID, "anio": year})
	if err != nil {
		return nil, fmt.Errorf("find balance %s/%d: %w", employeeID, year, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		l.cfg.logger.Warn("duplicate balance rows",
			zap.String("employee_id", employeeID),
			zap.Int("anio", year),
			zap.Int("rows", len(rows)),
		)
	}
	return &rows[0], nil
}

// =============================================================================
// PROPAGATION - Employee denormalized total
// =============================================================================

// Sync writes the sum of dias_disponibles across years onto the employee.
func (l *Ledger) Sync(ctx context.Context, employeeID string) error {
	rows, err := l.Balances(ctx, employeeID)
	if err != nil {
		return err
	}
	total := 0
	for _, r := range rows {
		total += r.DiasDisponibles
	}

	emp, err := l.store.Employees.Get(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("get employee %s: %w", employeeID, err)
	}
	if emp == nil {
		return &generic.NotFoundError{Collection: CollectionEmployees, ID: employeeID}
	}
	if emp.DiasVacacionesProteccion == total {
		return nil
	}
	emp.DiasVacacionesProteccion = total
	if _, err := l.store.Employees.Update(ctx, emp.ID, *emp); err != nil {
		return fmt.Errorf("update employee %s: %w", emp.ID, err)
	}
	return nil
}

// syncEffect runs Sync as a best-effort step.
func (l *Ledger) syncEffect(ctx context.Context, employeeID string) SideEffect {
	effect := SideEffect{Step: StepLedgerSync, Err: l.Sync(ctx, employeeID)}
	if effect.Err != nil {
		l.cfg.logger.Error("vacation balance propagation failed",
			zap.String("employee_id", employeeID),
			zap.Error(effect.Err),
		)
	}
	return effect
}

// =============================================================================
// CONSUMPTION
// =============================================================================

// YearDraw is the amount taken from one year row.
type YearDraw struct {
	Anio int
	Dias int
}

// Consumption is the result of Consume.
type Consumption struct {
	EmployeeID string
	Requested  int
	Draws      []YearDraw
	Remaining  int
	Sync       SideEffect
}

// PartialConsumptionError reports a Consume that stopped after writing some
// year rows. Rows are updated one at a time without a transaction; Applied
// lists the draws that were persisted before Err.
type PartialConsumptionError struct {
	EmployeeID string
	Applied    []YearDraw
	Err        error
}

func (e *PartialConsumptionError) Error() string {
	return fmt.Sprintf("consume for employee %s stopped after %d of its draws: %v",
		e.EmployeeID, len(e.Applied), e.Err)
}

func (e *PartialConsumptionError) Unwrap() error {
	return e.Err
}

// Consume draws days from the employee's rows, oldest year first. The request
// is validated upfront against the total available across all years, and the
// draws are planned before any row is written. A write failure after the
// first row returns *PartialConsumptionError; the employee total is still
// re-propagated so it matches what was persisted.
func (l *Ledger) Consume(ctx context.Context, employeeID string, days int) (*Consumption, error) {
	if days <= 0 {
		return nil, &generic.ValidationError{Field: "dias", Message: "must be a positive number of days"}
	}
	rows, err := l.Balances(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	available := 0
	for _, r := range rows {
		available += r.DiasDisponibles
	}
	if days > available {
		return nil, &generic.InsufficientBalanceError{EmployeeID: employeeID, Available: available, Requested: days}
	}

	type draw struct {
		row  VacationPendingBalance
		take int
	}
	var plan []draw
	remaining := days
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		take := row.DiasPendientes - row.DiasConsumidos
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		row.DiasConsumidos += take
		recomputeTotals(&row)
		plan = append(plan, draw{row: row, take: take})
		remaining -= take
	}

	res := &Consumption{EmployeeID: employeeID, Requested: days}
	for _, d := range plan {
		if _, err := l.store.Balances.Update(ctx, d.row.ID, d.row); err != nil {
			err = fmt.Errorf("update balance %s: %w", d.row.ID, err)
			if len(res.Draws) == 0 {
				return nil, err
			}
			l.cfg.logger.Error("vacation consumption partially applied",
				zap.String("employee_id", employeeID),
				zap.Int("draws_applied", len(res.Draws)),
				zap.Error(err),
			)
			l.syncEffect(ctx, employeeID)
			return nil, &PartialConsumptionError{EmployeeID: employeeID, Applied: res.Draws, Err: err}
		}
		res.Draws = append(res.Draws, YearDraw{Anio: d.row.Anio, Dias: d.take})
	}
	res.Remaining = available - days

	l.cfg.logger.Info("vacation pending days consumed",
		zap.String("employee_id", employeeID),
		zap.Int("dias", days),
		zap.Int("restantes", res.Remaining),
	)
	res.Sync = l.syncEffect(ctx, employeeID)
	return res, nil
}
