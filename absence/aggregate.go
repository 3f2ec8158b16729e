package absence

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/absence-engine/generic"
)

// NoDepartment groups employees without a departamento.
const NoDepartment = "sin departamento"

// GlobalAbsenteeism is the aggregate over a population of employees.
//
// Failure policy: a per-employee unit that fails is excluded from both sums,
// logged, and listed in Failed. The aggregate is then partial, and callers
// can tell. Context cancellation aborts the whole aggregate.
type GlobalAbsenteeism struct {
	Window         generic.Period
	Employees      int
	HoursNotWorked decimal.Decimal
	HoursExpected  decimal.Decimal
	Rate           decimal.Decimal
	Failed         []UnitFailure
}

// UnitFailure records one employee excluded from an aggregate.
type UnitFailure struct {
	EmployeeID string
	Err        error
}

// DepartmentAbsenteeism is the aggregate of one department.
type DepartmentAbsenteeism struct {
	Department string
	GlobalAbsenteeism
}

type unitResult struct {
	employeeID string
	result     AbsenteeismResult
	err        error
}

// Global runs the per-employee calculation for every id in parallel over one
// shared snapshot and sums the results. nil ids means everybody in
// the snapshot. A nil ref is loaded once here.
func (c *AbsenteeismCalculator) Global(ctx context.Context, window generic.Period, ids []string, ref *Reference) (*GlobalAbsenteeism, error) {
	if ref == nil {
		var err error
		if ref, err = LoadReference(ctx, c.store, c.cfg.loc); err != nil {
			return nil, err
		}
	}
	if ids == nil {
		ids = employeeIDs(ref.Employees)
	}

	units, err := c.fanOut(ctx, window, ref, ids)
	if err != nil {
		return nil, err
	}

	agg := &GlobalAbsenteeism{
		Window:         window,
		HoursNotWorked: decimal.Zero,
		HoursExpected:  decimal.Zero,
	}
	for _, u := range units {
		if u.err != nil {
			agg.Failed = append(agg.Failed, UnitFailure{EmployeeID: u.employeeID, Err: u.err})
			continue
		}
		agg.Employees++
		agg.HoursNotWorked = agg.HoursNotWorked.Add(u.result.HoursNotWorked)
		agg.HoursExpected = agg.HoursExpected.Add(u.result.HoursExpected)
	}
	agg.HoursNotWorked = generic.Round2(agg.HoursNotWorked)
	agg.HoursExpected = generic.Round2(agg.HoursExpected)
	agg.Rate = generic.Round2(generic.Percent(agg.HoursNotWorked, agg.HoursExpected))

	if len(agg.Failed) > 0 {
		c.cfg.logger.Warn("absenteeism aggregate is partial",
			zap.Int("failed", len(agg.Failed)),
			zap.Int("employees", agg.Employees),
		)
	}
	return agg, nil
}

// ByDepartment re-invokes Global once per department, in parallel, over the
// same snapshot. Results are sorted by department name.
func (c *AbsenteeismCalculator) ByDepartment(ctx context.Context, window generic.Period, ref *Reference) ([]DepartmentAbsenteeism, error) {
	if ref == nil {
		var err error
		if ref, err = LoadReference(ctx, c.store, c.cfg.loc); err != nil {
			return nil, err
		}
	}

	groups := make(map[string][]string)
	for _, e := range ref.Employees {
		dept := e.Departamento
		if dept == "" {
			dept = NoDepartment
		}
		groups[dept] = append(groups[dept], e.ID)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DepartmentAbsenteeism, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			agg, err := c.Global(gctx, window, groups[name], ref)
			if err != nil {
				return fmt.Errorf("department %s: %w", name, err)
			}
			out[i] = DepartmentAbsenteeism{Department: name, GlobalAbsenteeism: *agg}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fanOut computes every unit with bounded parallelism. Unit errors are
// captured per unit; only context cancellation fails the whole call.
func (c *AbsenteeismCalculator) fanOut(ctx context.Context, window generic.Period, ref *Reference, ids []string) ([]unitResult, error) {
	units := make([]unitResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.fanOut)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			units[i] = c.unit(gctx, id, window, ref)
			if units[i].err != nil {
				c.cfg.logger.Error("absenteeism unit failed",
					zap.String("employee_id", id),
					zap.Error(units[i].err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

func (c *AbsenteeismCalculator) unit(ctx context.Context, id string, window generic.Period, ref *Reference) (u unitResult) {
	u.employeeID = id
	defer func() {
		if r := recover(); r != nil {
			u.err = fmt.Errorf("panic: %v", r)
		}
	}()

	res, err := c.ForEmployee(ctx, id, window, ref)
	switch {
	case err != nil:
		u.err = err
	case res == nil:
		u.err = &generic.NotFoundError{Collection: CollectionEmployees, ID: id}
	default:
		u.result = *res
	}
	return u
}
