package absence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/store/memory"
)

var septemberNow = time.Date(2024, time.September, 30, 12, 0, 0, 0, time.UTC)

func (f *fixture) calculate(t *testing.T, a absence.Absence, typ absence.AbsenceType) *absence.LedgerUpdate {
	t.Helper()
	in := f.reference(t).LedgerInputFor(a.EmployeeID)
	update, err := f.ledger().Calculate(f.ctx, a, typ, in, absence.CalcOptions{})
	require.NoError(t, err)
	return update
}

// seedBalance stores a row whose single detail entry carries pending days.
func (f *fixture) seedBalance(t *testing.T, empID string, year, pending int) absence.VacationPendingBalance {
	t.Helper()
	row, err := f.store.Balances.Create(f.ctx, absence.VacationPendingBalance{
		EmployeeID:      empID,
		Anio:            year,
		DiasPendientes:  pending,
		DiasDisponibles: pending,
		Detalle: []absence.BalanceDetail{{
			AbsenceID:        "seed",
			FechaInicio:      time.Date(year, time.August, 1, 0, 0, 0, 0, time.UTC).Format(generic.DateLayout),
			DiasCoincidentes: pending,
		}},
	})
	require.NoError(t, err)
	return row
}

// =============================================================================
// COINCIDENT DAYS
// =============================================================================

func TestComputeCoincidence(t *testing.T) {
	today := septemberNow
	sick := absence.AbsenceType{Meta: generic.Meta{ID: "sick"}, Nombre: "Baja médica"}
	summer := absence.Vacation{Nombre: "Verano", FechaInicio: "2024-08-05", FechaFin: "2024-08-16"}

	tests := []struct {
		name     string
		absence  absence.Absence
		typ      absence.AbsenceType
		in       absence.LedgerInput
		wantDays int
		wantYear int
	}{
		{
			name:     "whole absence inside vacation",
			absence:  absence.Absence{FechaInicio: "2024-08-05", FechaFin: "2024-08-09"},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{summer}},
			wantDays: 5,
			wantYear: 2024,
		},
		{
			name:     "weekend inside the absence is not credited",
			absence:  absence.Absence{FechaInicio: "2024-08-08", FechaFin: "2024-08-12"},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{summer}},
			wantDays: 3,
			wantYear: 2024,
		},
		{
			name:    "holiday inside the vacation is not credited",
			absence: absence.Absence{FechaInicio: "2024-08-12", FechaFin: "2024-08-16"},
			typ:     sick,
			in: absence.LedgerInput{
				Vacations: []absence.Vacation{summer},
				Holidays:  []absence.Holiday{{Fecha: "2024-08-15"}},
			},
			wantDays: 4,
			wantYear: 2024,
		},
		{
			name:    "year is the start year of the absence",
			absence: absence.Absence{FechaInicio: "2023-12-28", FechaFin: "2024-01-03"},
			typ:     sick,
			in: absence.LedgerInput{
				Vacations: []absence.Vacation{{Nombre: "Navidad", FechaInicio: "2023-12-27", FechaFin: "2024-01-05"}},
				Holidays:  []absence.Holiday{{Fecha: "2024-01-01"}},
			},
			wantDays: 4,
			wantYear: 2023,
		},
		{
			name:     "no vacation overlap",
			absence:  absence.Absence{FechaInicio: "2024-03-04", FechaFin: "2024-03-08"},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{summer}},
			wantDays: 0,
		},
		{
			name:     "type that consumes vacation",
			absence:  absence.Absence{FechaInicio: "2024-08-05", FechaFin: "2024-08-09"},
			typ:      absence.AbsenceType{Nombre: "Asuntos propios", NoConsumeVacaciones: boolPtr(false)},
			in:       absence.LedgerInput{Vacations: []absence.Vacation{summer}},
			wantDays: 0,
		},
		{
			name:     "absence in the future",
			absence:  absence.Absence{FechaInicio: "2024-12-02", FechaFin: "2024-12-04"},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{{Nombre: "Puente", FechaInicio: "2024-12-02", FechaFin: "2024-12-06"}}},
			wantDays: 0,
		},
		{
			name:     "open absence starting after today",
			absence:  absence.Absence{FechaInicio: "2024-12-02", FechaFinDesconocida: true},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{{Nombre: "Puente", FechaInicio: "2024-12-02", FechaFin: "2024-12-06"}}},
			wantDays: 0,
		},
		{
			name:     "unparseable vacation is ignored",
			absence:  absence.Absence{FechaInicio: "2024-08-05", FechaFin: "2024-08-09"},
			typ:      sick,
			in:       absence.LedgerInput{Vacations: []absence.Vacation{{Nombre: "Roto", FechaInicio: "agosto", FechaFin: "2024-08-09"}, summer}},
			wantDays: 5,
			wantYear: 2024,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail, year, err := absence.ComputeCoincidence(tt.absence, tt.typ, tt.in, today, time.UTC)
			require.NoError(t, err)
			if tt.wantDays == 0 {
				assert.Nil(t, detail)
				return
			}
			require.NotNil(t, detail)
			assert.Equal(t, tt.wantDays, detail.DiasCoincidentes)
			assert.Equal(t, tt.wantYear, year)
		})
	}
}

func TestComputeCoincidence_FirstMatchingPeriodWins(t *testing.T) {
	// GIVEN: Two overlapping global periods, stored out of order
	// WHEN: An absence falls inside both
	// THEN: Every day is credited once, to the period that starts first

	in := absence.LedgerInput{Vacations: []absence.Vacation{
		{Nombre: "Semana", FechaInicio: "2024-08-05", FechaFin: "2024-08-09"},
		{Nombre: "Agosto", FechaInicio: "2024-08-01", FechaFin: "2024-08-30"},
	}}
	a := absence.Absence{Meta: generic.Meta{ID: "a1"}, FechaInicio: "2024-08-05", FechaFin: "2024-08-06"}

	detail, _, err := absence.ComputeCoincidence(a, absence.AbsenceType{Nombre: "Baja"}, in, septemberNow, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 2, detail.DiasCoincidentes)
	require.Len(t, detail.Periodos, 1)
	assert.Equal(t, absence.PeriodCredit{Nombre: "Agosto", FechaInicio: "2024-08-01", FechaFin: "2024-08-30", Dias: 2}, detail.Periodos[0])
}

func TestComputeCoincidence_OpenAbsenceClippedToToday(t *testing.T) {
	today := time.Date(2024, time.August, 7, 12, 0, 0, 0, time.UTC)
	in := absence.LedgerInput{Vacations: []absence.Vacation{{Nombre: "Verano", FechaInicio: "2024-08-05", FechaFin: "2024-08-16"}}}

	open := absence.Absence{Meta: generic.Meta{ID: "a1"}, FechaInicio: "2024-08-05", FechaFinDesconocida: true}
	detail, _, err := absence.ComputeCoincidence(open, absence.AbsenceType{Nombre: "Baja"}, in, today, time.UTC)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 3, detail.DiasCoincidentes, "Mon..Wed")
	assert.Empty(t, detail.FechaFin)

	closed := absence.Absence{Meta: generic.Meta{ID: "a2"}, FechaInicio: "2024-08-05", FechaFin: "2024-08-09"}
	detail, _, err = absence.ComputeCoincidence(closed, absence.AbsenceType{Nombre: "Baja"}, in, today, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.DiasCoincidentes, "future days are not credited yet")
	assert.Equal(t, "2024-08-09", detail.FechaFin)
}

func TestComputeCoincidence_BadDates(t *testing.T) {
	a := absence.Absence{Meta: generic.Meta{ID: "a1"}, FechaInicio: "ayer", FechaFin: "2024-08-09"}

	_, _, err := absence.ComputeCoincidence(a, absence.AbsenceType{}, absence.LedgerInput{}, septemberNow, time.UTC)

	assert.ErrorIs(t, err, generic.ErrInvalidDate)
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestLedger_CalculateCreatesRowAndPropagates(t *testing.T) {
	// GIVEN: A sick leave Mon 5 - Fri 9 Aug during the summer closure
	// WHEN: Calculating its ledger entry
	// THEN: The 2024 row has 5 pending days and the employee total is 5

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-09")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")

	update := f.calculate(t, a, sick)

	require.NotNil(t, update)
	assert.True(t, update.Written)
	assert.True(t, update.Sync.OK())

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, 2024, row.Anio)
	assert.Equal(t, 5, row.DiasPendientes)
	assert.Equal(t, 0, row.DiasConsumidos)
	assert.Equal(t, 5, row.DiasDisponibles)
	require.Len(t, row.Detalle, 1)
	assert.Equal(t, a.ID, row.Detalle[0].AbsenceID)
	assert.Equal(t, "Baja médica", row.Detalle[0].Tipo)
	assert.Equal(t, []absence.PeriodCredit{{Nombre: "Verano", FechaInicio: "2024-08-05", FechaFin: "2024-08-09", Dias: 5}}, row.Detalle[0].Periodos)

	assert.Equal(t, 5, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_CalculateIsIdempotent(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-16")
	a := f.absence(t, emp, sick, "2024-08-08", "2024-08-12")

	first := f.calculate(t, a, sick)
	second := f.calculate(t, a, sick)

	assert.True(t, first.Written)
	assert.False(t, second.Written, "unchanged row is not rewritten")

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Detalle, 1)
	assert.Equal(t, 3, rows[0].DiasPendientes)
}

func TestLedger_CalculateReplacesEntryByAbsenceID(t *testing.T) {
	// GIVEN: A computed entry of 5 days
	// WHEN: The absence is shortened and recalculated
	// THEN: The entry is replaced, not accumulated

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-09")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")
	f.calculate(t, a, sick)

	a.FechaFin = "2024-08-06"
	f.calculate(t, a, sick)

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Detalle, 1)
	assert.Equal(t, 2, rows[0].DiasPendientes)
	assert.Equal(t, 2, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_DetailsSortedAcrossAbsences(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-16")
	late := f.absence(t, emp, sick, "2024-08-14", "2024-08-14")
	early := f.absence(t, emp, sick, "2024-08-06", "2024-08-07")

	f.calculate(t, late, sick)
	f.calculate(t, early, sick)

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Detalle, 2)
	assert.Equal(t, early.ID, rows[0].Detalle[0].AbsenceID)
	assert.Equal(t, late.ID, rows[0].Detalle[1].AbsenceID)
	assert.Equal(t, 3, rows[0].DiasPendientes)
}

func TestLedger_OwnVacationAbsenceIsACandidate(t *testing.T) {
	// GIVEN: No global vacation, but the employee booked vacation Mon 1 - Fri 5 Jul
	// WHEN: The employee is sick Wed 3 - Thu 4 Jul
	// THEN: Those 2 days are credited to the booked vacation

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	vac := f.vacationType(t)
	f.absence(t, emp, vac, "2024-07-01", "2024-07-05")
	a := f.absence(t, emp, sick, "2024-07-03", "2024-07-04")

	update := f.calculate(t, a, sick)

	require.NotNil(t, update)
	require.NotNil(t, update.Balance)
	require.Len(t, update.Balance.Detalle, 1)
	d := update.Balance.Detalle[0]
	assert.Equal(t, 2, d.DiasCoincidentes)
	require.Len(t, d.Periodos, 1)
	assert.Equal(t, "Vacaciones", d.Periodos[0].Nombre)
	assert.Equal(t, "2024-07-01", d.Periodos[0].FechaInicio)
	assert.Equal(t, "2024-07-05", d.Periodos[0].FechaFin)
}

func TestLedger_CalculateNothingToCredit(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")

	update := f.calculate(t, a, sick)

	assert.Nil(t, update)
	assert.Empty(t, f.balances(t, emp.ID))
}

func TestLedger_SkipSyncLeavesEmployeeUntouched(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-09")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")

	in := f.reference(t).LedgerInputFor(emp.ID)
	update, err := f.ledger().Calculate(f.ctx, a, sick, in, absence.CalcOptions{SkipSync: true})

	require.NoError(t, err)
	assert.Empty(t, update.Sync.Step)
	assert.Equal(t, 0, f.reload(t, emp.ID).DiasVacacionesProteccion)

	require.NoError(t, f.ledger().Sync(f.ctx, emp.ID))
	assert.Equal(t, 5, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

// =============================================================================
// REMOVE
// =============================================================================

func TestLedger_RemoveDeletesEmptyRow(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-09")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")
	f.calculate(t, a, sick)

	update, err := f.ledger().Remove(f.ctx, a.ID, emp.ID, 2024)

	require.NoError(t, err)
	assert.True(t, update.Deleted)
	assert.Nil(t, update.Balance)
	assert.True(t, update.Sync.OK())
	assert.Empty(t, f.balances(t, emp.ID))
	assert.Equal(t, 0, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_RemoveKeepsOtherEntries(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-16")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-06")
	b := f.absence(t, emp, sick, "2024-08-13", "2024-08-13")
	f.calculate(t, a, sick)
	f.calculate(t, b, sick)

	update, err := f.ledger().Remove(f.ctx, a.ID, emp.ID, 2024)

	require.NoError(t, err)
	assert.False(t, update.Deleted)
	require.NotNil(t, update.Balance)
	assert.Equal(t, 1, update.Balance.DiasPendientes)
	assert.Equal(t, 1, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_RemoveAbsenceSearchesEveryYear(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano 2023", "2023-08-07", "2023-08-11")
	a := f.absence(t, emp, sick, "2023-08-07", "2023-08-08")
	f.calculate(t, a, sick)
	f.seedBalance(t, emp.ID, 2024, 4)

	update, err := f.ledger().RemoveAbsence(f.ctx, a.ID, emp.ID, absence.CalcOptions{})

	require.NoError(t, err)
	assert.True(t, update.Deleted)
	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 2024, rows[0].Anio)
	assert.Equal(t, 4, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_RemoveUnknownAbsenceIsNoop(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	f.seedBalance(t, emp.ID, 2024, 4)

	update, err := f.ledger().Remove(f.ctx, "ghost", emp.ID, 2024)

	require.NoError(t, err)
	assert.False(t, update.Written)
	assert.Len(t, f.balances(t, emp.ID), 1)
}

// =============================================================================
// CONSUMPTION
// =============================================================================

func TestLedger_ConsumeOldestYearFirst(t *testing.T) {
	// GIVEN: 2 days available in 2023 and 4 in 2024
	// WHEN: Consuming 3 days
	// THEN: 2023 is exhausted first, then 1 day from 2024

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	f.seedBalance(t, emp.ID, 2024, 4)
	f.seedBalance(t, emp.ID, 2023, 2)

	res, err := f.ledger().Consume(f.ctx, emp.ID, 3)

	require.NoError(t, err)
	assert.Equal(t, []absence.YearDraw{{Anio: 2023, Dias: 2}, {Anio: 2024, Dias: 1}}, res.Draws)
	assert.Equal(t, 3, res.Remaining)
	assert.True(t, res.Sync.OK())

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].DiasConsumidos)
	assert.Equal(t, 0, rows[0].DiasDisponibles)
	assert.Equal(t, 1, rows[1].DiasConsumidos)
	assert.Equal(t, 3, rows[1].DiasDisponibles)
	assert.Equal(t, 3, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_ConsumeInsufficientBalance(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	f.seedBalance(t, emp.ID, 2023, 2)
	f.seedBalance(t, emp.ID, 2024, 4)

	_, err := f.ledger().Consume(f.ctx, emp.ID, 7)

	var balErr *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &balErr))
	assert.Equal(t, 6, balErr.Available)
	assert.Equal(t, 7, balErr.Requested)

	for _, row := range f.balances(t, emp.ID) {
		assert.Zero(t, row.DiasConsumidos, "nothing is drawn on a rejected request")
	}
}

func TestLedger_ConsumeReportsPartialWrites(t *testing.T) {
	// GIVEN: 2 days in 2023 and 4 in 2024, and a store that fails the second row write
	// WHEN: Consuming 3 days
	// THEN: The 2023 draw is reported as applied and the employee total matches the store

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	f.seedBalance(t, emp.ID, 2023, 2)
	f.seedBalance(t, emp.ID, 2024, 4)
	mem, ok := f.store.Balances.(*memory.Collection[absence.VacationPendingBalance])
	require.True(t, ok)
	f.store.Balances = &flakyBalances{Collection: mem, failOn: 2}

	res, err := f.ledger().Consume(f.ctx, emp.ID, 3)

	assert.Nil(t, res)
	var partial *absence.PartialConsumptionError
	require.True(t, errors.As(err, &partial))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []absence.YearDraw{{Anio: 2023, Dias: 2}}, partial.Applied)

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].DiasConsumidos)
	assert.Zero(t, rows[1].DiasConsumidos)
	assert.Equal(t, 4, f.reload(t, emp.ID).DiasVacacionesProteccion)
}

func TestLedger_ConsumeFirstWriteFailureLeavesNothingApplied(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	f.seedBalance(t, emp.ID, 2024, 4)
	mem, ok := f.store.Balances.(*memory.Collection[absence.VacationPendingBalance])
	require.True(t, ok)
	f.store.Balances = &flakyBalances{Collection: mem, failOn: 1}

	_, err := f.ledger().Consume(f.ctx, emp.ID, 1)

	assert.ErrorIs(t, err, errBoom)
	var partial *absence.PartialConsumptionError
	assert.False(t, errors.As(err, &partial))
	assert.Zero(t, f.balances(t, emp.ID)[0].DiasConsumidos)
}

func TestLedger_ConsumeRejectsNonPositive(t *testing.T) {
	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")

	for _, days := range []int{0, -2} {
		_, err := f.ledger().Consume(f.ctx, emp.ID, days)
		var valErr *generic.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.Equal(t, "dias", valErr.Field)
	}
}

func TestLedger_ShrinkClampsConsumed(t *testing.T) {
	// GIVEN: All 5 credited days were consumed
	// WHEN: The absence shrinks to 2 coincident days
	// THEN: Consumed is clamped to 2 and nothing stays available

	f := newFixture(t, septemberNow)
	emp := f.employee(t, "Ana", "Ventas")
	sick := f.sickType(t)
	f.vacation(t, "Verano", "2024-08-05", "2024-08-09")
	a := f.absence(t, emp, sick, "2024-08-05", "2024-08-09")
	f.calculate(t, a, sick)
	_, err := f.ledger().Consume(f.ctx, emp.ID, 5)
	require.NoError(t, err)

	a.FechaFin = "2024-08-06"
	f.calculate(t, a, sick)

	rows := f.balances(t, emp.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].DiasPendientes)
	assert.Equal(t, 2, rows[0].DiasConsumidos)
	assert.Equal(t, 0, rows[0].DiasDisponibles)
}

func TestLedger_SyncMissingEmployee(t *testing.T) {
	f := newFixture(t, septemberNow)

	err := f.ledger().Sync(f.ctx, "ghost")

	assert.True(t, generic.IsNotFound(err))
}

// flakyBalances fails the failOn-th Update (1-based) with errBoom.
type flakyBalances struct {
	*memory.Collection[absence.VacationPendingBalance]
	updates int
	failOn  int
}

func (b *flakyBalances) Update(ctx context.Context, id string, v absence.VacationPendingBalance) (absence.VacationPendingBalance, error) {
	b.updates++
	if b.updates == b.failOn {
		return absence.VacationPendingBalance{}, errBoom
	}
	return b.Collection.Update(ctx, id, v)
}
