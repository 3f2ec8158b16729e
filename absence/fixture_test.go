package absence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ctx   context.Context
	store *absence.Store
	now   time.Time
	opts  []absence.Option
}

// newFixture returns an empty memory store with "now" pinned.
func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	return &fixture{
		ctx:   context.Background(),
		store: memory.NewAbsenceStore(),
		now:   now,
		opts: []absence.Option{
			absence.WithClock(func() time.Time { return now }),
			absence.WithLogger(zap.NewNop()),
		},
	}
}

func (f *fixture) ledger() *absence.Ledger {
	return absence.NewLedger(f.store, f.opts...)
}

func (f *fixture) calculator() *absence.AbsenteeismCalculator {
	return absence.NewAbsenteeismCalculator(f.store, f.opts...)
}

func (f *fixture) employee(t *testing.T, nombre, departamento string) absence.Employee {
	t.Helper()
	e, err := f.store.Employees.Create(f.ctx, absence.Employee{
		Nombre:       nombre,
		Departamento: departamento,
		HorasJornada: 40,
		Disponible:   true,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) absenceType(t *testing.T, nombre string, noConsume *bool) absence.AbsenceType {
	t.Helper()
	at, err := f.store.AbsenceTypes.Create(f.ctx, absence.AbsenceType{
		Nombre:              nombre,
		NoConsumeVacaciones: noConsume,
	})
	require.NoError(t, err)
	return at
}

func (f *fixture) sickType(t *testing.T) absence.AbsenceType {
	return f.absenceType(t, "Baja médica", boolPtr(true))
}

func (f *fixture) vacationType(t *testing.T) absence.AbsenceType {
	return f.absenceType(t, "Vacaciones", boolPtr(false))
}

func (f *fixture) vacation(t *testing.T, nombre, from, to string) absence.Vacation {
	t.Helper()
	v, err := f.store.Vacations.Create(f.ctx, absence.Vacation{Nombre: nombre, FechaInicio: from, FechaFin: to})
	require.NoError(t, err)
	return v
}

func (f *fixture) holiday(t *testing.T, fecha string) absence.Holiday {
	t.Helper()
	h, err := f.store.Holidays.Create(f.ctx, absence.Holiday{Nombre: "Festivo", Fecha: fecha})
	require.NoError(t, err)
	return h
}

// absence persists an absence directly, bypassing the lifecycle.
func (f *fixture) absence(t *testing.T, emp absence.Employee, typ absence.AbsenceType, from, to string) absence.Absence {
	t.Helper()
	a, err := f.store.Absences.Create(f.ctx, absence.Absence{
		EmployeeID:          emp.ID,
		AbsenceTypeID:       typ.ID,
		Tipo:                typ.Nombre,
		FechaInicio:         from,
		FechaFin:            to,
		FechaFinDesconocida: to == "",
		Estado:              absence.EstadoAprobada,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) reference(t *testing.T) *absence.Reference {
	t.Helper()
	ref, err := absence.LoadReference(f.ctx, f.store, time.UTC)
	require.NoError(t, err)
	return ref
}

func (f *fixture) balances(t *testing.T, employeeID string) []absence.VacationPendingBalance {
	t.Helper()
	rows, err := f.ledger().Balances(f.ctx, employeeID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) reload(t *testing.T, id string) absence.Employee {
	t.Helper()
	e, err := f.store.Employees.Get(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e)
	return *e
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

// recordingNotifier keeps every event; err is returned from Notify.
type recordingNotifier struct {
	mu     sync.Mutex
	events []absence.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e absence.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Events() []absence.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]absence.Event(nil), n.events...)
}
