/*
lifecycle.go - Absence lifecycle orchestration

PURPOSE:
  The external-facing create / update / delete of absences. Each call
  persists the absence and then runs the dependent steps in order:

    1. availability   - employee.disponible from all of their absences
    2. ledger         - vacation-pending balance (calculate or remove)
    3. ledger_sync    - employee.dias_vacaciones_proteccion
    4. absenteeism    - year-to-date figures on the employee
    5. notification   - create and update only

SIDE EFFECTS:
  Steps after persistence never roll the mutation back. Each reports a
  SideEffect in the returned Outcome; failures are also logged. Only
  validation, not-found and persistence errors fail the call itself.

VACATION-LIKE ABSENCES:
  An employee's own vacation absences are candidates for the ledger of
  their protected absences, so mutating one re-evaluates the others.

SEE ALSO:
  - ledger.go: Calculate / RemoveAbsence / Sync
  - absenteeism.go: RefreshEmployeeStats
  - notify/: Notifier implementations
*/
package absence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/generic"
)

// Side-effect steps.
const (
	StepAvailability = "availability"
	StepLedger       = "ledger"
	StepLedgerSync   = "ledger_sync"
	StepAbsenteeism  = "absenteeism"
	StepNotification = "notification"
)

// SideEffect is the result of one best-effort step.
type SideEffect struct {
	Step string
	Err  error
}

// OK reports whether the step succeeded.
func (s SideEffect) OK() bool { return s.Err == nil }

// Outcome is the result of a lifecycle call.
type Outcome struct {
	Absence Absence
	Effects []SideEffect
}

// Failed returns the steps that did not succeed.
func (o *Outcome) Failed() []SideEffect {
	var out []SideEffect
	for _, e := range o.Effects {
		if !e.OK() {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Event types.
const (
	EventAbsenceCreated = "absence.created"
	EventAbsenceUpdated = "absence.updated"
)

// Event is published after an absence is created or updated.
type Event struct {
	Type       string    `json:"type"`
	AbsenceID  string    `json:"absence_id"`
	EmployeeID string    `json:"employee_id"`
	Absence    Absence   `json:"absence"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier dispatches events. Implementations live in package notify.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// AbsenceUpdate lists the fields to change. Nil fields are kept.
type AbsenceUpdate struct {
	AbsenceTypeID       *string
	FechaInicio         *string
	FechaFin            *string
	FechaFinDesconocida *bool
	Motivo              *string
	Estado              *string
}

// Lifecycle orchestrates absence mutations.
type Lifecycle struct {
	store       *Store
	ledger      *Ledger
	absenteeism *AbsenteeismCalculator
	notifier    Notifier
	cfg         settings
}

// NewLifecycle wires the orchestrator. notifier may be nil.
func NewLifecycle(store *Store, ledger *Ledger, calc *AbsenteeismCalculator, notifier Notifier, opts ...Option) *Lifecycle {
	return &Lifecycle{
		store:       store,
		ledger:      ledger,
		absenteeism: calc,
		notifier:    notifier,
		cfg:         newSettings("absence.lifecycle", opts),
	}
}

// CreateAbsence validates and persists a new absence, then runs every step.
func (l *Lifecycle) CreateAbsence(ctx context.Context, in Absence) (*Outcome, error) {
	in.ID = ""
	typ, err := l.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.Tipo == "" {
		in.Tipo = typ.Nombre
	}
	if in.Estado == "" {
		in.Estado = EstadoAprobada
		if typ.RequiereAprobacion {
			in.Estado = EstadoPendiente
		}
	}
	if strings.TrimSpace(in.FechaFin) == "" {
		in.FechaFinDesconocida = true
	}

	created, err := l.store.Absences.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create absence: %w", err)
	}
	l.cfg.logger.Info("absence created",
		zap.String("absence_id", created.ID),
		zap.String("employee_id", created.EmployeeID),
		zap.String("estado", created.Estado),
	)

	out := &Outcome{Absence: created}
	l.afterMutation(ctx, out, nil, nil, EventAbsenceCreated)
	return out, nil
}

// UpdateAbsence applies changes to an existing absence, then runs every step.
// A change of dates or type removes the old ledger entry before recomputing.
func (l *Lifecycle) UpdateAbsence(ctx context.Context, id string, changes AbsenceUpdate) (*Outcome, error) {
	existing, err := l.store.Absences.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get absence %s: %w", id, err)
	}
	if existing == nil {
		return nil, &generic.NotFoundError{Collection: CollectionAbsences, ID: id}
	}
	previous := *existing

	next := applyUpdate(previous, changes)
	typ, err := l.validate(ctx, next)
	if err != nil {
		return nil, err
	}
	if changes.AbsenceTypeID != nil && *changes.AbsenceTypeID != previous.AbsenceTypeID {
		next.Tipo = typ.Nombre
	}

	saved, err := l.store.Absences.Update(ctx, id, next)
	if err != nil {
		return nil, fmt.Errorf("update absence %s: %w", id, err)
	}
	l.cfg.logger.Info("absence updated",
		zap.String("absence_id", saved.ID),
		zap.String("employee_id", saved.EmployeeID),
	)

	oldType, err := l.store.AbsenceTypes.Get(ctx, previous.AbsenceTypeID)
	if err != nil {
		l.cfg.logger.Warn("previous absence type unavailable",
			zap.String("absence_type_id", previous.AbsenceTypeID),
			zap.Error(err),
		)
	}

	out := &Outcome{Absence: saved}
	l.afterMutation(ctx, out, &previous, oldType, EventAbsenceUpdated)
	return out, nil
}

// DeleteAbsence removes an absence and its ledger contribution. No
// notification is sent.
func (l *Lifecycle) DeleteAbsence(ctx context.Context, id string) (*Outcome, error) {
	existing, err := l.store.Absences.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get absence %s: %w", id, err)
	}
	if existing == nil {
		return nil, &generic.NotFoundError{Collection: CollectionAbsences, ID: id}
	}
	if err := l.store.Absences.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete absence %s: %w", id, err)
	}
	l.cfg.logger.Info("absence deleted",
		zap.String("absence_id", id),
		zap.String("employee_id", existing.EmployeeID),
	)

	out := &Outcome{Absence: *existing}
	out.Effects = append(out.Effects, l.availability(ctx, existing.EmployeeID))

	_, err = l.ledger.RemoveAbsence(ctx, id, existing.EmployeeID, CalcOptions{SkipSync: true})
	out.Effects = append(out.Effects, l.effect(StepLedger, existing.EmployeeID, err))

	// Only a vacation-like deletion changes other absences' credits.
	ref, err := LoadEmployeeReference(ctx, l.store, existing.EmployeeID, l.cfg.loc)
	if err != nil {
		out.Effects = append(out.Effects, l.effect(StepLedger, existing.EmployeeID, err))
	} else if t, ok := ref.Type(existing.AbsenceTypeID); ok && t.IsVacationLike() {
		out.Effects = append(out.Effects, l.reevaluateProtected(ctx, ref, "")...)
	}
	out.Effects = append(out.Effects, l.effect(StepLedgerSync, existing.EmployeeID, l.ledger.Sync(ctx, existing.EmployeeID)))
	out.Effects = append(out.Effects, l.refreshAbsenteeism(ctx, existing.EmployeeID))
	return out, nil
}

// afterMutation runs steps 1-5 for a created or updated absence.
func (l *Lifecycle) afterMutation(ctx context.Context, out *Outcome, previous *Absence, oldType *AbsenceType, event string) {
	a := out.Absence
	out.Effects = append(out.Effects, l.availability(ctx, a.EmployeeID))
	out.Effects = append(out.Effects, l.updateLedger(ctx, a, previous, oldType)...)
	out.Effects = append(out.Effects, l.effect(StepLedgerSync, a.EmployeeID, l.ledger.Sync(ctx, a.EmployeeID)))
	out.Effects = append(out.Effects, l.refreshAbsenteeism(ctx, a.EmployeeID))
	if l.notifier != nil {
		err := l.notifier.Notify(ctx, Event{
			Type:       event,
			AbsenceID:  a.ID,
			EmployeeID: a.EmployeeID,
			Absence:    a,
			OccurredAt: l.cfg.now(),
		})
		out.Effects = append(out.Effects, l.effect(StepNotification, a.EmployeeID, err))
	}
}

func (l *Lifecycle) updateLedger(ctx context.Context, a Absence, previous *Absence, oldType *AbsenceType) []SideEffect {
	ref, err := LoadEmployeeReference(ctx, l.store, a.EmployeeID, l.cfg.loc)
	if err != nil {
		return []SideEffect{l.effect(StepLedger, a.EmployeeID, err)}
	}
	typ, ok := ref.Type(a.AbsenceTypeID)
	if !ok {
		return []SideEffect{l.effect(StepLedger, a.EmployeeID, &generic.NotFoundError{Collection: CollectionAbsenceTypes, ID: a.AbsenceTypeID})}
	}

	var effects []SideEffect
	if previous != nil && movedInLedger(*previous, a) {
		_, err := l.ledger.RemoveAbsence(ctx, a.ID, a.EmployeeID, CalcOptions{SkipSync: true})
		effects = append(effects, l.effect(StepLedger, a.EmployeeID, err))
	}
	effects = append(effects, l.recalculate(ctx, ref, a, typ))

	wasVacation := oldType != nil && oldType.IsVacationLike()
	if typ.IsVacationLike() || wasVacation {
		effects = append(effects, l.reevaluateProtected(ctx, ref, a.ID)...)
	}
	return effects
}

// recalculate upserts the absence's ledger entry, or drops it when the
// absence no longer credits anything.
func (l *Lifecycle) recalculate(ctx context.Context, ref *Reference, a Absence, typ AbsenceType) SideEffect {
	update, err := l.ledger.Calculate(ctx, a, typ, ref.LedgerInputFor(a.EmployeeID), CalcOptions{SkipSync: true})
	if err == nil && update == nil {
		_, err = l.ledger.RemoveAbsence(ctx, a.ID, a.EmployeeID, CalcOptions{SkipSync: true})
	}
	return l.effect(StepLedger, a.EmployeeID, err)
}

// reevaluateProtected recomputes every protected absence of the snapshot's
// employee except skipID.
func (l *Lifecycle) reevaluateProtected(ctx context.Context, ref *Reference, skipID string) []SideEffect {
	var effects []SideEffect
	for _, emp := range ref.Employees {
		for _, other := range ref.AbsencesOf(emp.ID) {
			if other.ID == skipID {
				continue
			}
			t, ok := ref.Type(other.AbsenceTypeID)
			if !ok || !t.ProtectsVacation() {
				continue
			}
			effects = append(effects, l.recalculate(ctx, ref, other, t))
		}
	}
	return effects
}

// movedInLedger reports whether an edit can move the absence to another
// balance row or change its eligibility.
func movedInLedger(before, after Absence) bool {
	return before.FechaInicio != after.FechaInicio ||
		before.FechaFin != after.FechaFin ||
		before.FechaFinDesconocida != after.FechaFinDesconocida ||
		before.AbsenceTypeID != after.AbsenceTypeID
}

// =============================================================================
// STEPS
// =============================================================================

// availability sets employee.disponible to false while any non-rejected
// absence covers now.
func (l *Lifecycle) availability(ctx context.Context, employeeID string) SideEffect {
	err := func() error {
		absences, err := l.store.Absences.Filter(ctx, generic.Criteria{"employee_id": employeeID})
		if err != nil {
			return fmt.Errorf("list absences of %s: %w", employeeID, err)
		}
		now := l.cfg.now().In(l.cfg.loc)
		available := true
		for _, a := range absences {
			if a.Estado == EstadoRechazada {
				continue
			}
			iv, err := a.Interval(l.cfg.loc, now)
			if err != nil {
				continue
			}
			if iv.Covers(now) {
				available = false
				break
			}
		}

		emp, err := l.store.Employees.Get(ctx, employeeID)
		if err != nil {
			return fmt.Errorf("get employee %s: %w", employeeID, err)
		}
		if emp == nil {
			return &generic.NotFoundError{Collection: CollectionEmployees, ID: employeeID}
		}
		if emp.Disponible == available {
			return nil
		}
		emp.Disponible = available
		if _, err := l.store.Employees.Update(ctx, emp.ID, *emp); err != nil {
			return fmt.Errorf("update employee %s: %w", emp.ID, err)
		}
		return nil
	}()
	return l.effect(StepAvailability, employeeID, err)
}

func (l *Lifecycle) refreshAbsenteeism(ctx context.Context, employeeID string) SideEffect {
	_, err := l.absenteeism.RefreshEmployeeStats(ctx, employeeID, nil)
	return l.effect(StepAbsenteeism, employeeID, err)
}

func (l *Lifecycle) effect(step, employeeID string, err error) SideEffect {
	if err != nil {
		l.cfg.logger.Error("absence side effect failed",
			zap.String("step", step),
			zap.String("employee_id", employeeID),
			zap.Error(err),
		)
	}
	return SideEffect{Step: step, Err: err}
}

// =============================================================================
// VALIDATION
// =============================================================================

// validate checks references and dates, returning the absence type.
func (l *Lifecycle) validate(ctx context.Context, a Absence) (AbsenceType, error) {
	if strings.TrimSpace(a.EmployeeID) == "" {
		return AbsenceType{}, &generic.ValidationError{Field: "employee_id", Message: "is required"}
	}
	if strings.TrimSpace(a.AbsenceTypeID) == "" {
		return AbsenceType{}, &generic.ValidationError{Field: "absence_type_id", Message: "is required"}
	}
	switch a.Estado {
	case "", EstadoPendiente, EstadoAprobada, EstadoRechazada:
	default:
		return AbsenceType{}, &generic.ValidationError{Field: "estado", Message: fmt.Sprintf("unknown state %q", a.Estado)}
	}

	emp, err := l.store.Employees.Get(ctx, a.EmployeeID)
	if err != nil {
		return AbsenceType{}, fmt.Errorf("get employee %s: %w", a.EmployeeID, err)
	}
	if emp == nil {
		return AbsenceType{}, &generic.NotFoundError{Collection: CollectionEmployees, ID: a.EmployeeID}
	}
	typ, err := l.store.AbsenceTypes.Get(ctx, a.AbsenceTypeID)
	if err != nil {
		return AbsenceType{}, fmt.Errorf("get absence type %s: %w", a.AbsenceTypeID, err)
	}
	if typ == nil {
		return AbsenceType{}, &generic.NotFoundError{Collection: CollectionAbsenceTypes, ID: a.AbsenceTypeID}
	}

	if _, _, err := generic.ParseTimestamp(a.FechaInicio, l.cfg.loc); err != nil {
		return AbsenceType{}, &generic.ValidationError{Field: "fecha_inicio", Message: err.Error()}
	}
	if !a.IsOpen() {
		if _, _, err := generic.ParseTimestamp(a.FechaFin, l.cfg.loc); err != nil {
			return AbsenceType{}, &generic.ValidationError{Field: "fecha_fin", Message: err.Error()}
		}
		if _, err := a.Interval(l.cfg.loc, time.Time{}); err != nil {
			return AbsenceType{}, &generic.ValidationError{Field: "fecha_fin", Message: "must not be before fecha_inicio"}
		}
	}
	return *typ, nil
}

func applyUpdate(a Absence, c AbsenceUpdate) Absence {
	if c.AbsenceTypeID != nil {
		a.AbsenceTypeID = *c.AbsenceTypeID
	}
	if c.FechaInicio != nil {
		a.FechaInicio = *c.FechaInicio
	}
	if c.FechaFin != nil {
		a.FechaFin = *c.FechaFin
		if c.FechaFinDesconocida == nil {
			a.FechaFinDesconocida = strings.TrimSpace(*c.FechaFin) == ""
		}
	}
	if c.FechaFinDesconocida != nil {
		a.FechaFinDesconocida = *c.FechaFinDesconocida
	}
	if c.Motivo != nil {
		a.Motivo = *c.Motivo
	}
	if c.Estado != nil {
		a.Estado = *c.Estado
	}
	return a
}
