/*
recalculate.go - Full ledger rebuild

PURPOSE:
  Rebuilds every VacationPendingBalance row from the absence history. Used
  for data-integrity repair, bulk migration, and on a schedule so credits
  for ongoing absences grow as days pass.

PHASES:
  1. Load the full snapshot (absences, types, vacations, holidays).
  2. For every protection-eligible absence, run Ledger.Calculate with
     SkipSync. Vacation-like absences of the same employee form the
     candidate set.
  3. Prune detail entries whose absence produced nothing this run; delete
     rows left empty.
  4. Propagate each referenced employee's total once.

IDEMPOTENCE:
  Calculate skips unchanged rows, so a second run over unchanged data
  writes no balance row at all.

SEE ALSO:
  - ledger.go: Per-absence calculation
  - api/scheduler.go: Periodic trigger
*/
package absence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/generic"
)

// RecalculationJob rebuilds the ledger and records each run.
type RecalculationJob struct {
	store  *Store
	ledger *Ledger
	cfg    settings
}

func NewRecalculationJob(store *Store, ledger *Ledger, opts ...Option) *RecalculationJob {
	return &RecalculationJob{
		store:  store,
		ledger: ledger,
		cfg:    newSettings("absence.recalc", opts),
	}
}

type balanceKey struct {
	employeeID string
	year       int
}

// Run executes one rebuild. The returned run is persisted in both the
// success and the failure case.
func (j *RecalculationJob) Run(ctx context.Context) (*RecalculationRun, error) {
	run, err := j.store.Runs.Create(ctx, RecalculationRun{
		Status:    RunRunning,
		StartedAt: j.stamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("record recalculation run: %w", err)
	}
	j.cfg.logger.Info("recalculation started", zap.String("run_id", run.ID))

	if err := j.rebuild(ctx, &run); err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		j.finish(ctx, &run)
		j.cfg.logger.Error("recalculation failed", zap.String("run_id", run.ID), zap.Error(err))
		return &run, err
	}

	run.Status = RunCompleted
	j.finish(ctx, &run)
	j.cfg.logger.Info("recalculation completed",
		zap.String("run_id", run.ID),
		zap.Int("processed", run.AbsencesProcessed),
		zap.Int("skipped", run.AbsencesSkipped),
		zap.Int("rows_written", run.RowsWritten),
		zap.Int("rows_deleted", run.RowsDeleted),
		zap.Int("employees_synced", run.EmployeesSynced),
	)
	return &run, nil
}

// Runs lists recorded runs, newest first.
func (j *RecalculationJob) Runs(ctx context.Context, limit int) ([]RecalculationRun, error) {
	return j.store.Runs.List(ctx, generic.ListOptions{OrderBy: "-started_at", Limit: limit})
}

func (j *RecalculationJob) rebuild(ctx context.Context, run *RecalculationRun) error {
	ref, err := LoadReference(ctx, j.store, j.cfg.loc)
	if err != nil {
		return err
	}
	for _, id := range ref.Invalid {
		j.cfg.logger.Warn("calendar record skipped: unusable dates", zap.String("id", id))
	}

	// Phase 2: compute everything, propagate nothing.
	produced := make(map[balanceKey]map[string]bool)
	for _, a := range ref.Absences {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, ok := ref.Type(a.AbsenceTypeID)
		if !ok {
			run.AbsencesSkipped++
			j.cfg.logger.Warn("absence skipped: unknown type",
				zap.String("absence_id", a.ID),
				zap.String("absence_type_id", a.AbsenceTypeID),
			)
			continue
		}
		if !t.ProtectsVacation() {
			continue
		}

		update, err := j.ledger.Calculate(ctx, a, t, ref.LedgerInputFor(a.EmployeeID), CalcOptions{SkipSync: true})
		if err != nil {
			if errors.Is(err, generic.ErrInvalidDate) || errors.Is(err, generic.ErrInvalidPeriod) {
				run.AbsencesSkipped++
				j.cfg.logger.Warn("absence skipped: unusable dates", zap.String("absence_id", a.ID), zap.Error(err))
				continue
			}
			return err
		}
		run.AbsencesProcessed++
		if update == nil {
			continue
		}
		if update.Written {
			run.RowsWritten++
		}
		key := balanceKey{employeeID: a.EmployeeID, year: update.Balance.Anio}
		if produced[key] == nil {
			produced[key] = make(map[string]bool)
		}
		produced[key][a.ID] = true
	}

	// Phase 3: prune what this run no longer produces.
	rows, err := j.store.Balances.List(ctx, generic.ListOptions{})
	if err != nil {
		return fmt.Errorf("list balances: %w", err)
	}
	employees := make(map[string]bool)
	for i := range rows {
		row := rows[i]
		employees[row.EmployeeID] = true

		keep := produced[balanceKey{employeeID: row.EmployeeID, year: row.Anio}]
		details := row.Detalle[:0:0]
		for _, d := range row.Detalle {
			if keep[d.AbsenceID] {
				details = append(details, d)
			}
		}
		if len(details) == len(row.Detalle) {
			continue
		}

		if len(details) == 0 {
			if err := j.store.Balances.Delete(ctx, row.ID); err != nil {
				return fmt.Errorf("delete balance %s: %w", row.ID, err)
			}
			run.RowsDeleted++
			continue
		}
		row.Detalle = details
		j.ledger.recompute(&row)
		if _, err := j.store.Balances.Update(ctx, row.ID, row); err != nil {
			return fmt.Errorf("update balance %s: %w", row.ID, err)
		}
		run.RowsWritten++
	}

	// Phase 4: one propagation per employee.
	ids := make([]string, 0, len(employees))
	for id := range employees {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := j.ledger.Sync(ctx, id); err != nil {
			j.cfg.logger.Error("vacation balance propagation failed", zap.String("employee_id", id), zap.Error(err))
			continue
		}
		run.EmployeesSynced++
	}
	return nil
}

func (j *RecalculationJob) finish(ctx context.Context, run *RecalculationRun) {
	run.CompletedAt = j.stamp()
	if _, err := j.store.Runs.Update(ctx, run.ID, *run); err != nil {
		j.cfg.logger.Error("record recalculation run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// stampLayout is fixed width so stamps sort as strings.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (j *RecalculationJob) stamp() string {
	return j.cfg.now().UTC().Format(stampLayout)
}
