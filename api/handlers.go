/*
handlers.go - HTTP API handlers for the absence accounting engine

PURPOSE:
  Exposes the absence lifecycle, the absenteeism calculators and the
  vacation-pending ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to package absence.

ENDPOINTS:
  Absences:
    POST   /api/absences                               Create absence
    PUT    /api/absences/{id}                          Update absence
    DELETE /api/absences/{id}                          Delete absence

  Absenteeism:
    GET    /api/employees/{id}/absenteeism?from&to     One employee
    GET    /api/absenteeism?from&to&department         Organization or one department
    GET    /api/absenteeism/departments?from&to        Every department

  Vacation-pending balances:
    GET    /api/employees/{id}/vacation-balances         Rows, oldest year first
    POST   /api/employees/{id}/vacation-balances/consume Draw days

  Admin:
    POST   /api/admin/vacation-balances/recalculate    Full ledger rebuild
    GET    /api/admin/recalculation-runs               Rebuild history
    POST   /api/admin/absenteeism/refresh              Year-to-date refresh for everybody

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient balance
  - 404: Resource not found
  - 500: Internal errors

  Side-effect failures after an absence mutation are not errors: they are
  reported per step in the response body.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *absence.Store
	Lifecycle   *absence.Lifecycle
	Absenteeism *absence.AbsenteeismCalculator
	Ledger      *absence.Ledger
	Recalc      *absence.RecalculationJob
	Location    *time.Location

	logger *zap.Logger
}

// NewHandler wires every engine service on store. opts are passed to each
// service (location, clock, logger, fan-out).
func NewHandler(store *absence.Store, notifier absence.Notifier, logger *zap.Logger, loc *time.Location, opts ...absence.Option) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	if loc == nil {
		loc = time.UTC
	}
	opts = append([]absence.Option{absence.WithLogger(logger), absence.WithLocation(loc)}, opts...)

	ledger := absence.NewLedger(store, opts...)
	calc := absence.NewAbsenteeismCalculator(store, opts...)
	return &Handler{
		Store:       store,
		Lifecycle:   absence.NewLifecycle(store, ledger, calc, notifier, opts...),
		Absenteeism: calc,
		Ledger:      ledger,
		Recalc:      absence.NewRecalculationJob(store, ledger, opts...),
		Location:    loc,
		logger:      logger.Named("api"),
	}
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// CreateAbsence registers an absence and runs its side effects.
// POST /api/absences
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	var req CreateAbsenceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.writeDomainError(w, "Invalid request", err)
		return
	}

	out, err := h.Lifecycle.CreateAbsence(r.Context(), toAbsence(req))
	if err != nil {
		h.writeDomainError(w, "Failed to create absence", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutcomeDTO(out))
}

// UpdateAbsence changes an absence and re-runs its side effects.
// PUT /api/absences/{id}
func (h *Handler) UpdateAbsence(w http.ResponseWriter, r *http.Request) {
	var req UpdateAbsenceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.writeDomainError(w, "Invalid request", err)
		return
	}

	out, err := h.Lifecycle.UpdateAbsence(r.Context(), chi.URLParam(r, "id"), toAbsenceUpdate(req))
	if err != nil {
		h.writeDomainError(w, "Failed to update absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

// DeleteAbsence removes an absence and its ledger contribution.
// DELETE /api/absences/{id}
func (h *Handler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	out, err := h.Lifecycle.DeleteAbsence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to delete absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

// =============================================================================
// ABSENTEEISM HANDLERS
// =============================================================================

// GetEmployeeAbsenteeism computes one employee's rate over a window
// (year to date by default).
// GET /api/employees/{id}/absenteeism
func (h *Handler) GetEmployeeAbsenteeism(w http.ResponseWriter, r *http.Request) {
	window, err := h.parseWindow(r)
	if err != nil {
		h.writeDomainError(w, "Invalid date range", err)
		return
	}

	id := chi.URLParam(r, "id")
	res, err := h.Absenteeism.ForEmployee(r.Context(), id, window, nil)
	if err != nil {
		h.writeDomainError(w, "Failed to compute absenteeism", err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenteeismDTO(res))
}

// GetGlobalAbsenteeism aggregates over everybody, or one department.
// GET /api/absenteeism
func (h *Handler) GetGlobalAbsenteeism(w http.ResponseWriter, r *http.Request) {
	window, err := h.parseWindow(r)
	if err != nil {
		h.writeDomainError(w, "Invalid date range", err)
		return
	}

	ctx := r.Context()
	ref, err := absence.LoadReference(ctx, h.Store, h.Location)
	if err != nil {
		h.writeDomainError(w, "Failed to load reference data", err)
		return
	}

	var ids []string
	department := r.URL.Query().Get("department")
	if department != "" {
		ids = []string{}
		for _, e := range ref.Employees {
			dept := e.Departamento
			if dept == "" {
				dept = absence.NoDepartment
			}
			if dept == department {
				ids = append(ids, e.ID)
			}
		}
	}

	agg, err := h.Absenteeism.Global(ctx, window, ids, ref)
	if err != nil {
		h.writeDomainError(w, "Failed to compute absenteeism", err)
		return
	}
	writeJSON(w, http.StatusOK, toGlobalDTO(department, agg))
}

// GetDepartmentAbsenteeism aggregates once per department.
// GET /api/absenteeism/departments
func (h *Handler) GetDepartmentAbsenteeism(w http.ResponseWriter, r *http.Request) {
	window, err := h.parseWindow(r)
	if err != nil {
		h.writeDomainError(w, "Invalid date range", err)
		return
	}

	depts, err := h.Absenteeism.ByDepartment(r.Context(), window, nil)
	if err != nil {
		h.writeDomainError(w, "Failed to compute absenteeism", err)
		return
	}

	dtos := make([]GlobalAbsenteeismDTO, len(depts))
	for i, d := range depts {
		d := d
		dtos[i] = toGlobalDTO(d.Department, &d.GlobalAbsenteeism)
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": dtos})
}

// =============================================================================
// VACATION-PENDING BALANCE HANDLERS
// =============================================================================

// ListVacationBalances returns the employee's ledger rows.
// GET /api/employees/{id}/vacation-balances
func (h *Handler) ListVacationBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	emp, err := h.Store.Employees.Get(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	rows, err := h.Ledger.Balances(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to list balances", err)
		return
	}
	total := 0
	for _, row := range rows {
		total += row.DiasDisponibles
	}
	if rows == nil {
		rows = []VacationBalanceDTO{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id":      id,
		"balances":         rows,
		"total_disponible": total,
	})
}

// ConsumeVacationBalance draws days, oldest year first.
// POST /api/employees/{id}/vacation-balances/consume
func (h *Handler) ConsumeVacationBalance(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		h.writeDomainError(w, "Invalid request", err)
		return
	}

	res, err := h.Ledger.Consume(r.Context(), chi.URLParam(r, "id"), req.Dias)
	if err != nil {
		h.writeDomainError(w, "Failed to consume vacation days", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumptionDTO(res))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RecalculateBalances rebuilds the whole ledger.
// POST /api/admin/vacation-balances/recalculate
func (h *Handler) RecalculateBalances(w http.ResponseWriter, r *http.Request) {
	run, err := h.Recalc.Run(r.Context())
	if err != nil {
		if run == nil {
			h.writeDomainError(w, "Failed to start recalculation", err)
			return
		}
		writeJSON(w, http.StatusInternalServerError, run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRecalculationRuns returns rebuild history, newest first.
// GET /api/admin/recalculation-runs?limit=
func (h *Handler) ListRecalculationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Recalc.Runs(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list recalculation runs", err)
		return
	}
	if runs == nil {
		runs = []RecalculationRunDTO{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// RefreshAbsenteeism recomputes year-to-date figures for everybody.
// POST /api/admin/absenteeism/refresh
func (h *Handler) RefreshAbsenteeism(w http.ResponseWriter, r *http.Request) {
	n, err := h.Absenteeism.RefreshAllEmployeeStats(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to refresh absenteeism", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees_updated": n})
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseWindow reads from/to (YYYY-MM-DD). Missing bounds default to
// Jan 1 of the current year and today.
func (h *Handler) parseWindow(r *http.Request) (generic.Period, error) {
	window := h.Absenteeism.YearToDate()
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		d, err := generic.ParseDay(s, h.Location)
		if err != nil {
			return generic.Period{}, &generic.ValidationError{Field: "from", Message: err.Error()}
		}
		window.Start = d
	}
	if s := q.Get("to"); s != "" {
		d, err := generic.ParseDay(s, h.Location)
		if err != nil {
			return generic.Period{}, &generic.ValidationError{Field: "to", Message: err.Error()}
		}
		window.End = d
	}
	return generic.NewPeriod(window.Start, window.End)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeCodedError(w, http.StatusNotFound, "not_found", message, err)
	case errors.Is(err, generic.ErrInsufficientBalance):
		var balErr *generic.InsufficientBalanceError
		if errors.As(err, &balErr) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: message,
				Code:  "insufficient_balance",
				Details: map[string]any{
					"message":   balErr.Error(),
					"available": balErr.Available,
					"requested": balErr.Requested,
				},
			})
			return
		}
		writeCodedError(w, http.StatusBadRequest, "insufficient_balance", message, err)
	case generic.IsClientError(err):
		writeCodedError(w, http.StatusBadRequest, "validation", message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}
