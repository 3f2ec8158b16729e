/*
types.go - Records of the absence accounting domain

PURPOSE:
  The six collections the engine reads and writes. Field names in JSON match
  the persisted records, which are shared with the rest of the application.

RECORDS:
  Employee               - weekly jornada + denormalized absenteeism figures
  Absence                - one absence interval for one employee
  AbsenceType            - category; no_consume_vacaciones drives the ledger
  Vacation               - global collective vacation period
  Holiday                - global single-date holiday
  VacationPendingBalance - per (employee, year) ledger row with audit detail

DATES:
  Absence/vacation/holiday dates are stored as user-entered strings and
  parsed at calculation time. A record that does not parse is skipped.

SEE ALSO:
  - store.go: Collection bundle
  - ledger.go: VacationPendingBalance maintenance
*/
package absence

import (
	"strings"
	"time"

	"github.com/warp/absence-engine/generic"
)

// Collection names as known by the entity store.
const (
	CollectionEmployees    = "Employee"
	CollectionAbsences     = "Absence"
	CollectionAbsenceTypes = "AbsenceType"
	CollectionVacations    = "Vacation"
	CollectionHolidays     = "Holiday"
	CollectionBalances     = "VacationPendingBalance"
	CollectionRuns         = "RecalculationRun"
)

// Approval states for an absence.
const (
	EstadoPendiente = "pendiente"
	EstadoAprobada  = "aprobada"
	EstadoRechazada = "rechazada"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	generic.Meta
	Nombre       string  `json:"nombre"`
	Departamento string  `json:"departamento,omitempty"`
	HorasJornada float64 `json:"num_horas_jornada,omitempty"`

	// Availability: false while an absence covers "now".
	Disponible bool `json:"disponible"`

	// Denormalized year-to-date absenteeism, refreshed by the calculator.
	TasaAbsentismo       float64 `json:"tasa_absentismo"`
	HorasNoTrabajadas    float64 `json:"horas_no_trabajadas"`
	HorasDeberiaTrabajar float64 `json:"horas_deberia_trabajar"`
	UltimoCalculo        string  `json:"ultima_actualizacion_absentismo,omitempty"`

	// Sum of dias_disponibles across all balance rows.
	DiasVacacionesProteccion int `json:"dias_vacaciones_proteccion"`
}

// =============================================================================
// ABSENCE
// =============================================================================

type Absence struct {
	generic.Meta
	EmployeeID          string `json:"employee_id"`
	AbsenceTypeID       string `json:"absence_type_id"`
	Tipo                string `json:"tipo,omitempty"`
	FechaInicio         string `json:"fecha_inicio"`
	FechaFin            string `json:"fecha_fin,omitempty"`
	FechaFinDesconocida bool   `json:"fecha_fin_desconocida"`
	Motivo              string `json:"motivo,omitempty"`
	Estado              string `json:"estado,omitempty"`
}

// IsOpen reports whether the absence has no known end.
func (a Absence) IsOpen() bool {
	return a.FechaFinDesconocida || strings.TrimSpace(a.FechaFin) == ""
}

// Interval parses the absence into instants. Open absences end at openEnd.
// A date-only end means the whole of that day.
//
// An open absence that starts after openEnd has nothing to count yet: the
// result is Empty and the error is nil. ErrInvalidPeriod is reserved for an
// explicit fecha_fin before fecha_inicio.
func (a Absence) Interval(loc *time.Location, openEnd time.Time) (generic.Interval, error) {
	start, _, err := generic.ParseTimestamp(a.FechaInicio, loc)
	if err != nil {
		return generic.Interval{}, err
	}
	if a.IsOpen() {
		return generic.Interval{Start: start, End: openEnd}, nil
	}
	end, dateOnly, err := generic.ParseTimestamp(a.FechaFin, loc)
	if err != nil {
		return generic.Interval{}, err
	}
	if dateOnly {
		end = generic.EndOfDay(end)
	}
	if end.Before(start) {
		return generic.Interval{}, generic.ErrInvalidPeriod
	}
	return generic.Interval{Start: start, End: end}, nil
}

// =============================================================================
// ABSENCE TYPE
// =============================================================================

type AbsenceType struct {
	generic.Meta
	Nombre    string `json:"nombre"`
	Categoria string `json:"categoria,omitempty"`

	// NoConsumeVacaciones defaults to true when unset.
	NoConsumeVacaciones *bool `json:"no_consume_vacaciones,omitempty"`
	Remunerada          bool  `json:"remunerada"`
	RequiereAprobacion  bool  `json:"requiere_aprobacion"`
}

// ProtectsVacation reports whether time under this type credits pending vacation.
func (t AbsenceType) ProtectsVacation() bool {
	return t.NoConsumeVacaciones == nil || *t.NoConsumeVacaciones
}

// IsVacationLike matches types whose name or category mentions vacaciones.
func (t AbsenceType) IsVacationLike() bool {
	return strings.Contains(strings.ToLower(t.Nombre), "vacaciones") ||
		strings.Contains(strings.ToLower(t.Categoria), "vacaciones")
}

// =============================================================================
// CALENDAR REFERENCE DATA
// =============================================================================

type Vacation struct {
	generic.Meta
	Nombre      string `json:"nombre"`
	FechaInicio string `json:"fecha_inicio"`
	FechaFin    string `json:"fecha_fin"`
}

// Period parses the vacation into an inclusive day period.
func (v Vacation) Period(loc *time.Location) (generic.Period, error) {
	start, err := generic.ParseDay(v.FechaInicio, loc)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := generic.ParseDay(v.FechaFin, loc)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(start, end)
}

type Holiday struct {
	generic.Meta
	Nombre string `json:"nombre"`
	Fecha  string `json:"fecha"`
}

// =============================================================================
// VACATION PENDING BALANCE
// =============================================================================

// VacationPendingBalance is the ledger row for one employee and year.
//
// INVARIANTS:
//   - DiasPendientes == sum(Detalle[i].DiasCoincidentes)
//   - DiasDisponibles == DiasPendientes - DiasConsumidos >= 0
//   - at most one detail entry per absence id
type VacationPendingBalance struct {
	generic.Meta
	EmployeeID      string          `json:"employee_id"`
	Anio            int             `json:"anio"`
	DiasPendientes  int             `json:"dias_pendientes"`
	DiasConsumidos  int             `json:"dias_consumidos"`
	DiasDisponibles int             `json:"dias_disponibles"`
	Detalle         []BalanceDetail `json:"detalle_ausencias"`
}

// BalanceDetail records how one absence contributed to a balance row.
type BalanceDetail struct {
	AbsenceID        string         `json:"absence_id"`
	Tipo             string         `json:"tipo"`
	FechaInicio      string         `json:"fecha_inicio"`
	FechaFin         string         `json:"fecha_fin"`
	DiasCoincidentes int            `json:"dias_coincidentes"`
	Periodos         []PeriodCredit `json:"periodos_vacaciones"`
}

// PeriodCredit is the number of coincident days attributed to one vacation period.
type PeriodCredit struct {
	Nombre      string `json:"nombre"`
	FechaInicio string `json:"fecha_inicio"`
	FechaFin    string `json:"fecha_fin"`
	Dias        int    `json:"dias"`
}

// =============================================================================
// RECALCULATION RUN
// =============================================================================

// RecalculationRun is the audit record of one ledger rebuild.
type RecalculationRun struct {
	generic.Meta
	Status            string `json:"status"`
	StartedAt         string `json:"started_at"`
	CompletedAt       string `json:"completed_at,omitempty"`
	AbsencesProcessed int    `json:"absences_processed"`
	AbsencesSkipped   int    `json:"absences_skipped"`
	RowsWritten       int    `json:"rows_written"`
	RowsDeleted       int    `json:"rows_deleted"`
	EmployeesSynced   int    `json:"employees_synced"`
	Error             string `json:"error,omitempty"`
}

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)
