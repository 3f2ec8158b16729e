/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's records from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Absences:
    CreateAbsenceRequest, UpdateAbsenceRequest, AbsenceOutcomeDTO

  Absenteeism:
    AbsenteeismDTO, GlobalAbsenteeismDTO (also per department)

  Vacation balances:
    VacationBalanceDTO, ConsumeRequest, ConsumptionDTO

  Admin:
    RecalculationRunDTO

VALIDATION:
  Request bodies carry go-playground/validator tags. Field names in
  validation errors are the JSON names.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateAbsenceRequest is the request to register an absence.
type CreateAbsenceRequest struct {
	EmployeeID          string `json:"employee_id" validate:"required"`
	AbsenceTypeID       string `json:"absence_type_id" validate:"required"`
	FechaInicio         string `json:"fecha_inicio" validate:"required"`
	FechaFin            string `json:"fecha_fin,omitempty"`
	FechaFinDesconocida bool   `json:"fecha_fin_desconocida"`
	Motivo              string `json:"motivo,omitempty" validate:"max=500"`
	Estado              string `json:"estado,omitempty" validate:"omitempty,oneof=pendiente aprobada rechazada"`
}

// UpdateAbsenceRequest changes an absence. Omitted fields are kept.
type UpdateAbsenceRequest struct {
	AbsenceTypeID       *string `json:"absence_type_id,omitempty" validate:"omitempty,min=1"`
	FechaInicio         *string `json:"fecha_inicio,omitempty" validate:"omitempty,min=1"`
	FechaFin            *string `json:"fecha_fin,omitempty"`
	FechaFinDesconocida *bool   `json:"fecha_fin_desconocida,omitempty"`
	Motivo              *string `json:"motivo,omitempty" validate:"omitempty,max=500"`
	Estado              *string `json:"estado,omitempty" validate:"omitempty,oneof=pendiente aprobada rechazada"`
}

// ConsumeRequest draws pending vacation days.
type ConsumeRequest struct {
	Dias int `json:"dias" validate:"required,gt=0"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SideEffectDTO reports one step after an absence mutation.
type SideEffectDTO struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AbsenceOutcomeDTO is returned by create / update / delete.
type AbsenceOutcomeDTO struct {
	Absence absence.Absence `json:"absence"`
	Effects []SideEffectDTO `json:"effects"`
}

// AbsenteeismDTO is one employee's absenteeism over a window.
type AbsenteeismDTO struct {
	EmployeeID     string   `json:"employee_id"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	DailyHours     float64  `json:"daily_hours"`
	HoursNotWorked float64  `json:"hours_not_worked"`
	HoursExpected  float64  `json:"hours_expected"`
	Rate           float64  `json:"rate"`
	Skipped        []string `json:"skipped_absences,omitempty"`
}

// UnitFailureDTO names an employee excluded from an aggregate.
type UnitFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

// GlobalAbsenteeismDTO is the aggregate over a population.
type GlobalAbsenteeismDTO struct {
	Department     string           `json:"department,omitempty"`
	From           string           `json:"from"`
	To             string           `json:"to"`
	Employees      int              `json:"employees"`
	HoursNotWorked float64          `json:"hours_not_worked"`
	HoursExpected  float64          `json:"hours_expected"`
	Rate           float64          `json:"rate"`
	Partial        bool             `json:"partial"`
	Failed         []UnitFailureDTO `json:"failed,omitempty"`
}

// VacationBalanceDTO is one ledger row.
type VacationBalanceDTO = absence.VacationPendingBalance

// YearDrawDTO is the amount consumed from one year.
type YearDrawDTO struct {
	Anio int `json:"anio"`
	Dias int `json:"dias"`
}

// ConsumptionDTO is the result of a consume request.
type ConsumptionDTO struct {
	EmployeeID string        `json:"employee_id"`
	Requested  int           `json:"requested"`
	Draws      []YearDrawDTO `json:"draws"`
	Remaining  int           `json:"remaining"`
	Synced     bool          `json:"synced"`
}

// RecalculationRunDTO is a recorded ledger rebuild.
type RecalculationRunDTO = absence.RecalculationRun

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it.
// Failures are generic.ValidationError so handlers map them to 400.
func decodeAndValidate(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &generic.ValidationError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		return mapValidationError(err)
	}
	return nil
}

func mapValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		switch e.Tag() {
		case "required":
			return &generic.ValidationError{Field: e.Field(), Message: "is required"}
		case "oneof":
			return &generic.ValidationError{Field: e.Field(), Message: "must be one of " + e.Param()}
		case "gt":
			return &generic.ValidationError{Field: e.Field(), Message: "must be greater than " + e.Param()}
		default:
			return &generic.ValidationError{Field: e.Field(), Message: "is invalid"}
		}
	}
	return &generic.ValidationError{Message: err.Error()}
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAbsence(req CreateAbsenceRequest) absence.Absence {
	return absence.Absence{
		EmployeeID:          req.EmployeeID,
		AbsenceTypeID:       req.AbsenceTypeID,
		FechaInicio:         req.FechaInicio,
		FechaFin:            req.FechaFin,
		FechaFinDesconocida: req.FechaFinDesconocida,
		Motivo:              req.Motivo,
		Estado:              req.Estado,
	}
}

func toAbsenceUpdate(req UpdateAbsenceRequest) absence.AbsenceUpdate {
	return absence.AbsenceUpdate{
		AbsenceTypeID:       req.AbsenceTypeID,
		FechaInicio:         req.FechaInicio,
		FechaFin:            req.FechaFin,
		FechaFinDesconocida: req.FechaFinDesconocida,
		Motivo:              req.Motivo,
		Estado:              req.Estado,
	}
}

func toOutcomeDTO(o *absence.Outcome) AbsenceOutcomeDTO {
	dto := AbsenceOutcomeDTO{Absence: o.Absence, Effects: make([]SideEffectDTO, len(o.Effects))}
	for i, e := range o.Effects {
		dto.Effects[i] = SideEffectDTO{Step: e.Step, OK: e.OK()}
		if e.Err != nil {
			dto.Effects[i].Error = e.Err.Error()
		}
	}
	return dto
}

func toAbsenteeismDTO(r *absence.AbsenteeismResult) AbsenteeismDTO {
	return AbsenteeismDTO{
		EmployeeID:     r.EmployeeID,
		From:           r.Window.Start.Format(generic.DateLayout),
		To:             r.Window.End.Format(generic.DateLayout),
		DailyHours:     generic.Float(r.DailyHours),
		HoursNotWorked: generic.Float(r.HoursNotWorked),
		HoursExpected:  generic.Float(r.HoursExpected),
		Rate:           generic.Float(r.Rate),
		Skipped:        r.Skipped,
	}
}

func toGlobalDTO(department string, g *absence.GlobalAbsenteeism) GlobalAbsenteeismDTO {
	dto := GlobalAbsenteeismDTO{
		Department:     department,
		From:           g.Window.Start.Format(generic.DateLayout),
		To:             g.Window.End.Format(generic.DateLayout),
		Employees:      g.Employees,
		HoursNotWorked: generic.Float(g.HoursNotWorked),
		HoursExpected:  generic.Float(g.HoursExpected),
		Rate:           generic.Float(g.Rate),
		Partial:        len(g.Failed) > 0,
	}
	for _, f := range g.Failed {
		dto.Failed = append(dto.Failed, UnitFailureDTO{EmployeeID: f.EmployeeID, Error: f.Err.Error()})
	}
	return dto
}

func toConsumptionDTO(c *absence.Consumption) ConsumptionDTO {
	dto := ConsumptionDTO{
		EmployeeID: c.EmployeeID,
		Requested:  c.Requested,
		Draws:      make([]YearDrawDTO, len(c.Draws)),
		Remaining:  c.Remaining,
		Synced:     c.Sync.OK(),
	}
	for i, d := range c.Draws {
		dto.Draws[i] = YearDrawDTO{Anio: d.Anio, Dias: d.Dias}
	}
	return dto
}
