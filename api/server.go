/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/absences/*       Absence lifecycle
  /api/employees/*      Per-employee absenteeism and balances
  /api/absenteeism/*    Organization and department KPIs
  /api/admin/*          Ledger rebuild, absenteeism refresh

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Absence lifecycle
		r.Route("/absences", func(r chi.Router) {
			r.Post("/", h.CreateAbsence)
			r.Put("/{id}", h.UpdateAbsence)
			r.Delete("/{id}", h.DeleteAbsence)
		})

		// Per-employee views
		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/absenteeism", h.GetEmployeeAbsenteeism)
			r.Get("/vacation-balances", h.ListVacationBalances)
			r.Post("/vacation-balances/consume", h.ConsumeVacationBalance)
		})

		// Aggregate KPIs
		r.Route("/absenteeism", func(r chi.Router) {
			r.Get("/", h.GetGlobalAbsenteeism)
			r.Get("/departments", h.GetDepartmentAbsenteeism)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/vacation-balances/recalculate", h.RecalculateBalances)
			r.Get("/recalculation-runs", h.ListRecalculationRuns)
			r.Post("/absenteeism/refresh", h.RefreshAbsenteeism)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
