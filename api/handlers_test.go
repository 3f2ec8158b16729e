/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Absence create / update / delete and their side-effect reports
- Absenteeism endpoints (employee, organization, departments)
- Vacation-pending balances and consumption
- Admin rebuild, run history and refresh
- Error mapping (400 / 404)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/store/memory"
)

var testNow = time.Date(2024, time.September, 30, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	ctx    context.Context
	store  *absence.Store
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewAbsenceStore()
	h := NewHandler(store, nil, zap.NewNop(), time.UTC,
		absence.WithClock(func() time.Time { return testNow }),
	)
	return &testServer{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		h:      h,
		router: NewRouter(h, []string{"*"}),
	}
}

// do sends body as JSON; a string body is sent verbatim.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) employee(nombre, dept string) absence.Employee {
	s.t.Helper()
	e, err := s.store.Employees.Create(s.ctx, absence.Employee{Nombre: nombre, Departamento: dept, HorasJornada: 40, Disponible: true})
	require.NoError(s.t, err)
	return e
}

func (s *testServer) sickType() absence.AbsenceType {
	s.t.Helper()
	no := true
	at, err := s.store.AbsenceTypes.Create(s.ctx, absence.AbsenceType{Nombre: "Baja médica", NoConsumeVacaciones: &no})
	require.NoError(s.t, err)
	return at
}

func (s *testServer) vacation(from, to string) {
	s.t.Helper()
	_, err := s.store.Vacations.Create(s.ctx, absence.Vacation{Nombre: "Verano", FechaInicio: from, FechaFin: to})
	require.NoError(s.t, err)
}

func (s *testServer) createAbsence(emp absence.Employee, typ absence.AbsenceType, from, to string) AbsenceOutcomeDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/absences", CreateAbsenceRequest{
		EmployeeID:    emp.ID,
		AbsenceTypeID: typ.ID,
		FechaInicio:   from,
		FechaFin:      to,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AbsenceOutcomeDTO](s.t, rec)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

// =============================================================================
// ABSENCES
// =============================================================================

func TestCreateAbsence(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	sick := s.sickType()
	s.vacation("2024-08-05", "2024-08-09")

	out := s.createAbsence(emp, sick, "2024-08-05", "2024-08-09")

	assert.NotEmpty(t, out.Absence.ID)
	assert.Equal(t, absence.EstadoAprobada, out.Absence.Estado)
	require.Len(t, out.Effects, 4, "no notifier configured")
	for _, e := range out.Effects {
		assert.True(t, e.OK, "%s: %s", e.Step, e.Error)
	}

	rec := s.do(http.MethodGet, "/api/employees/"+emp.ID+"/vacation-balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Balances        []VacationBalanceDTO `json:"balances"`
		TotalDisponible int                  `json:"total_disponible"`
	}](t, rec)
	assert.Equal(t, 5, body.TotalDisponible)
	require.Len(t, body.Balances, 1)
	assert.Equal(t, 2024, body.Balances[0].Anio)
}

func TestCreateAbsence_BadRequests(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	sick := s.sickType()

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"malformed json", `{"employee_id": `, http.StatusBadRequest, "validation"},
		{"unknown field", `{"employee_id": "x", "absence_type_id": "y", "fecha_inicio": "2024-01-01", "dias": 3}`, http.StatusBadRequest, "validation"},
		{"missing employee", CreateAbsenceRequest{AbsenceTypeID: sick.ID, FechaInicio: "2024-09-02"}, http.StatusBadRequest, "validation"},
		{"bad estado", CreateAbsenceRequest{EmployeeID: emp.ID, AbsenceTypeID: sick.ID, FechaInicio: "2024-09-02", Estado: "borrada"}, http.StatusBadRequest, "validation"},
		{"end before start", CreateAbsenceRequest{EmployeeID: emp.ID, AbsenceTypeID: sick.ID, FechaInicio: "2024-09-06", FechaFin: "2024-09-02"}, http.StatusBadRequest, "validation"},
		{"unknown employee", CreateAbsenceRequest{EmployeeID: "ghost", AbsenceTypeID: sick.ID, FechaInicio: "2024-09-02"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/absences", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCreateAbsence_ValidationNamesJSONField(t *testing.T) {
	s := newTestServer(t)
	sick := s.sickType()

	rec := s.do(http.MethodPost, "/api/absences", CreateAbsenceRequest{AbsenceTypeID: sick.ID, FechaInicio: "2024-09-02"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "employee_id: is required", decode[ErrorResponse](t, rec).Details)
}

func TestUpdateAbsence(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	sick := s.sickType()
	s.vacation("2024-08-05", "2024-08-09")
	created := s.createAbsence(emp, sick, "2024-08-05", "2024-08-09")

	fin := "2024-08-06"
	rec := s.do(http.MethodPut, "/api/absences/"+created.Absence.ID, UpdateAbsenceRequest{FechaFin: &fin})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[AbsenceOutcomeDTO](t, rec)
	assert.Equal(t, "2024-08-06", out.Absence.FechaFin)

	emp2, err := s.store.Employees.Get(s.ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, emp2.DiasVacacionesProteccion)
}

func TestUpdateAbsence_NotFound(t *testing.T) {
	s := newTestServer(t)
	motivo := "x"

	rec := s.do(http.MethodPut, "/api/absences/ghost", UpdateAbsenceRequest{Motivo: &motivo})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAbsence(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	sick := s.sickType()
	s.vacation("2024-08-05", "2024-08-09")
	created := s.createAbsence(emp, sick, "2024-08-05", "2024-08-09")

	rec := s.do(http.MethodDelete, "/api/absences/"+created.Absence.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/employees/"+emp.ID+"/vacation-balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["total_disponible"])
	assert.Empty(t, decode[map[string]any](t, rec)["balances"])

	rec = s.do(http.MethodDelete, "/api/absences/"+created.Absence.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ABSENTEEISM
// =============================================================================

func TestGetEmployeeAbsenteeism(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	s.createAbsence(emp, s.sickType(), "2024-03-05", "2024-03-07")

	rec := s.do(http.MethodGet, "/api/employees/"+emp.ID+"/absenteeism?from=2024-03-04&to=2024-03-15", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decode[AbsenteeismDTO](t, rec)
	assert.Equal(t, "2024-03-04", dto.From)
	assert.Equal(t, "2024-03-15", dto.To)
	assert.Equal(t, 8.0, dto.DailyHours)
	assert.Equal(t, 24.0, dto.HoursNotWorked)
	assert.Equal(t, 80.0, dto.HoursExpected)
	assert.Equal(t, 30.0, dto.Rate)
}

func TestGetEmployeeAbsenteeism_Errors(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown employee", "/api/employees/ghost/absenteeism", http.StatusNotFound},
		{"bad from", "/api/employees/" + emp.ID + "/absenteeism?from=marzo", http.StatusBadRequest},
		{"reversed window", "/api/employees/" + emp.ID + "/absenteeism?from=2024-03-15&to=2024-03-04", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestGetGlobalAbsenteeism(t *testing.T) {
	s := newTestServer(t)
	sick := s.sickType()
	ana := s.employee("Ana", "Ventas")
	s.employee("Luis", "Ventas")
	pep := s.employee("Pep", "IT")
	s.createAbsence(ana, sick, "2024-03-05", "2024-03-07")
	s.createAbsence(pep, sick, "2024-03-04", "2024-03-08")

	rec := s.do(http.MethodGet, "/api/absenteeism?from=2024-03-04&to=2024-03-15", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	all := decode[GlobalAbsenteeismDTO](t, rec)
	assert.Equal(t, 3, all.Employees)
	assert.Equal(t, 64.0, all.HoursNotWorked)
	assert.Equal(t, 240.0, all.HoursExpected)
	assert.Equal(t, 26.67, all.Rate)
	assert.False(t, all.Partial)

	rec = s.do(http.MethodGet, "/api/absenteeism?from=2024-03-04&to=2024-03-15&department=Ventas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ventas := decode[GlobalAbsenteeismDTO](t, rec)
	assert.Equal(t, "Ventas", ventas.Department)
	assert.Equal(t, 2, ventas.Employees)
	assert.Equal(t, 15.0, ventas.Rate)

	rec = s.do(http.MethodGet, "/api/absenteeism?from=2024-03-04&to=2024-03-15&department=RRHH", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[GlobalAbsenteeismDTO](t, rec).Employees)
}

func TestGetDepartmentAbsenteeism(t *testing.T) {
	s := newTestServer(t)
	sick := s.sickType()
	ana := s.employee("Ana", "Ventas")
	s.employee("Pep", "IT")
	s.createAbsence(ana, sick, "2024-03-05", "2024-03-07")

	rec := s.do(http.MethodGet, "/api/absenteeism/departments?from=2024-03-04&to=2024-03-15", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Departments []GlobalAbsenteeismDTO `json:"departments"`
	}](t, rec)
	require.Len(t, body.Departments, 2)
	assert.Equal(t, "IT", body.Departments[0].Department)
	assert.Equal(t, 0.0, body.Departments[0].Rate)
	assert.Equal(t, "Ventas", body.Departments[1].Department)
	assert.Equal(t, 30.0, body.Departments[1].Rate)
}

// =============================================================================
// VACATION-PENDING BALANCES
// =============================================================================

func TestListVacationBalances_UnknownEmployee(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/employees/ghost/vacation-balances", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsumeVacationBalance(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	s.vacation("2024-08-05", "2024-08-09")
	s.createAbsence(emp, s.sickType(), "2024-08-05", "2024-08-09")
	path := "/api/employees/" + emp.ID + "/vacation-balances/consume"

	rec := s.do(http.MethodPost, path, ConsumeRequest{Dias: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ConsumptionDTO](t, rec)
	assert.Equal(t, []YearDrawDTO{{Anio: 2024, Dias: 3}}, res.Draws)
	assert.Equal(t, 2, res.Remaining)
	assert.True(t, res.Synced)

	rec = s.do(http.MethodPost, path, ConsumeRequest{Dias: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}](t, rec)
	assert.Equal(t, "insufficient_balance", errResp.Code)
	assert.Equal(t, float64(2), errResp.Details["available"])
	assert.Equal(t, float64(5), errResp.Details["requested"])

	for _, body := range []string{`{"dias": 0}`, `{"dias": -1}`, `{}`} {
		rec = s.do(http.MethodPost, path, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

// =============================================================================
// ADMIN
// =============================================================================

func TestRecalculateBalances(t *testing.T) {
	s := newTestServer(t)
	emp := s.employee("Ana", "Ventas")
	sick := s.sickType()
	s.vacation("2024-08-05", "2024-08-09")
	_, err := s.store.Absences.Create(s.ctx, absence.Absence{
		EmployeeID:    emp.ID,
		AbsenceTypeID: sick.ID,
		FechaInicio:   "2024-08-05",
		FechaFin:      "2024-08-09",
		Estado:        absence.EstadoAprobada,
	})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/api/admin/vacation-balances/recalculate", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[RecalculationRunDTO](t, rec)
	assert.Equal(t, absence.RunCompleted, run.Status)
	assert.Equal(t, 1, run.RowsWritten)

	rec = s.do(http.MethodGet, "/api/admin/recalculation-runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[struct {
		Runs []RecalculationRunDTO `json:"runs"`
	}](t, rec)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, run.ID, runs.Runs[0].ID)

	rec = s.do(http.MethodGet, "/api/admin/recalculation-runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAbsenteeism(t *testing.T) {
	s := newTestServer(t)
	s.employee("Ana", "Ventas")
	s.employee("Luis", "IT")

	rec := s.do(http.MethodPost, "/api/admin/absenteeism/refresh", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["employees_updated"])
}
