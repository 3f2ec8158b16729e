package absence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/absence-engine/generic"
)

// Store bundles the collections the engine consumes.
// Implementations: store/sqlite.NewAbsenceStore, store/memory.NewAbsenceStore.
type Store struct {
	Employees    generic.Collection[Employee]
	Absences     generic.Collection[Absence]
	AbsenceTypes generic.Collection[AbsenceType]
	Vacations    generic.Collection[Vacation]
	Holidays     generic.Collection[Holiday]
	Balances     generic.Collection[VacationPendingBalance]
	Runs         generic.Collection[RecalculationRun]
}

// =============================================================================
// OPTIONS - Shared by every service in this package
// =============================================================================

// Clock returns "now". Injected so tests can pin "today".
type Clock func() time.Time

type settings struct {
	loc    *time.Location
	now    Clock
	logger *zap.Logger
	fanOut int
}

// Option configures a service.
type Option func(*settings)

// WithLocation sets the zone naive timestamps are read in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(c Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.now = c
		}
	}
}

// WithLogger sets the parent logger; each service names a child.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFanOut bounds concurrent per-employee units in aggregate reads.
func WithFanOut(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

func newSettings(name string, opts []Option) settings {
	s := settings{loc: time.UTC, now: time.Now, logger: zap.L(), fanOut: 8}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.Named(name)
	return s
}

func (s settings) today() time.Time {
	return generic.DayOf(s.now().In(s.loc))
}

// =============================================================================
// REFERENCE SNAPSHOT - Preloaded data shared across a batch
// =============================================================================

// Reference is an immutable snapshot of everything the calculators read.
// Batch call sites load it once and pass it to every calculation.
type Reference struct {
	Employees []Employee
	Absences  []Absence
	Types     []AbsenceType
	Vacations []Vacation
	Holidays  []Holiday

	// Invalid lists vacation/holiday ids whose dates did not parse.
	Invalid []string

	employees  map[string]Employee
	types      map[string]AbsenceType
	byEmployee map[string][]Absence
	periods    []namedPeriod
	calendar   *generic.Calendar
}

// namedPeriod is a vacation candidate with its audit label.
type namedPeriod struct {
	name   string
	period generic.Period
}

// NewReference indexes raw records. The slices are not copied and must not
// be mutated afterwards.
func NewReference(employees []Employee, absences []Absence, types []AbsenceType, vacations []Vacation, holidays []Holiday, loc *time.Location) *Reference {
	r := &Reference{
		Employees:  employees,
		Absences:   absences,
		Types:      types,
		Vacations:  vacations,
		Holidays:   holidays,
		employees:  make(map[string]Employee, len(employees)),
		types:      make(map[string]AbsenceType, len(types)),
		byEmployee: make(map[string][]Absence),
	}
	for _, e := range employees {
		r.employees[e.ID] = e
	}
	for _, t := range types {
		r.types[t.ID] = t
	}
	for _, a := range absences {
		r.byEmployee[a.EmployeeID] = append(r.byEmployee[a.EmployeeID], a)
	}

	var invalid []string
	r.periods, invalid = vacationPeriods(vacations, loc)
	r.Invalid = append(r.Invalid, invalid...)

	days, invalid := holidayDays(holidays, loc)
	r.Invalid = append(r.Invalid, invalid...)

	plain := make([]generic.Period, len(r.periods))
	for i, p := range r.periods {
		plain[i] = p.period
	}
	r.calendar = generic.NewCalendar(days, plain)
	return r
}

// Employee looks up an employee by id.
func (r *Reference) Employee(id string) (Employee, bool) {
	e, ok := r.employees[id]
	return e, ok
}

// Type looks up an absence type by id.
func (r *Reference) Type(id string) (AbsenceType, bool) {
	t, ok := r.types[id]
	return t, ok
}

// AbsencesOf returns the employee's absences.
func (r *Reference) AbsencesOf(employeeID string) []Absence {
	return r.byEmployee[employeeID]
}

// Calendar is the global holiday + vacation calendar.
func (r *Reference) Calendar() *generic.Calendar {
	return r.calendar
}

// VacationAbsencesOf returns the employee's absences whose type is vacation-like.
func (r *Reference) VacationAbsencesOf(employeeID string) []Absence {
	var out []Absence
	for _, a := range r.byEmployee[employeeID] {
		if t, ok := r.types[a.AbsenceTypeID]; ok && t.IsVacationLike() {
			out = append(out, a)
		}
	}
	return out
}

// LoadReference fetches every collection the calculators read, in parallel.
func LoadReference(ctx context.Context, store *Store, loc *time.Location) (*Reference, error) {
	var (
		employees []Employee
		absences  []Absence
		types     []AbsenceType
		vacations []Vacation
		holidays  []Holiday
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		employees, err = store.Employees.List(gctx, generic.ListOptions{})
		return wrapLoad(CollectionEmployees, err)
	})
	g.Go(func() (err error) {
		absences, err = store.Absences.List(gctx, generic.ListOptions{OrderBy: "fecha_inicio"})
		return wrapLoad(CollectionAbsences, err)
	})
	g.Go(func() (err error) {
		types, err = store.AbsenceTypes.List(gctx, generic.ListOptions{})
		return wrapLoad(CollectionAbsenceTypes, err)
	})
	g.Go(func() (err error) {
		vacations, err = store.Vacations.List(gctx, generic.ListOptions{OrderBy: "fecha_inicio"})
		return wrapLoad(CollectionVacations, err)
	})
	g.Go(func() (err error) {
		holidays, err = store.Holidays.List(gctx, generic.ListOptions{})
		return wrapLoad(CollectionHolidays, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewReference(employees, absences, types, vacations, holidays, loc), nil
}

// LoadEmployeeReference fetches a snapshot scoped to one employee: the
// employee, their absences, and the global types and calendar.
func LoadEmployeeReference(ctx context.Context, store *Store, employeeID string, loc *time.Location) (*Reference, error) {
	var (
		employee  *Employee
		absences  []Absence
		types     []AbsenceType
		vacations []Vacation
		holidays  []Holiday
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		employee, err = store.Employees.Get(gctx, employeeID)
		return wrapLoad(CollectionEmployees, err)
	})
	g.Go(func() (err error) {
		absences, err = store.Absences.Filter(gctx, generic.Criteria{"employee_id": employeeID})
		return wrapLoad(CollectionAbsences, err)
	})
	g.Go(func() (err error) {
		types, err = store.AbsenceTypes.List(gctx, generic.ListOptions{})
		return wrapLoad(CollectionAbsenceTypes, err)
	})
	g.Go(func() (err error) {
		vacations, err = store.Vacations.List(gctx, generic.ListOptions{OrderBy: "fecha_inicio"})
		return wrapLoad(CollectionVacations, err)
	})
	g.Go(func() (err error) {
		holidays, err = store.Holidays.List(gctx, generic.ListOptions{})
		return wrapLoad(CollectionHolidays, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var employees []Employee
	if employee != nil {
		employees = []Employee{*employee}
	}
	return NewReference(employees, absences, types, vacations, holidays, loc), nil
}

func wrapLoad(collection string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", collection, err)
	}
	return nil
}

func vacationPeriods(vacations []Vacation, loc *time.Location) ([]namedPeriod, []string) {
	var (
		out     []namedPeriod
		invalid []string
	)
	for _, v := range vacations {
		p, err := v.Period(loc)
		if err != nil {
			invalid = append(invalid, v.ID)
			continue
		}
		out = append(out, namedPeriod{name: v.Nombre, period: p})
	}
	return out, invalid
}

func holidayDays(holidays []Holiday, loc *time.Location) ([]time.Time, []string) {
	var (
		out     []time.Time
		invalid []string
	)
	for _, h := range holidays {
		d, err := generic.ParseDay(h.Fecha, loc)
		if err != nil {
			invalid = append(invalid, h.ID)
			continue
		}
		out = append(out, d)
	}
	return out, invalid
}
