/*
scheduler.go - Automated ledger rebuild and absenteeism refresh

PURPOSE:
  Periodically rebuilds the vacation-pending ledger and refreshes the
  year-to-date absenteeism figures of every employee. Both depend on
  "today": credits for ongoing absences grow as days pass, and the
  year-to-date window moves forward.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each rebuild is recorded as a RecalculationRun for audit and UI display
  - A failing pass is logged; the next tick tries again

CONFIGURATION:
  - CheckInterval: How often to run (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecalculationScheduler(job, calc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecalculateBalances endpoint (manual rebuild)
  - absence/recalculate.go: RecalculationJob
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
)

// RecalculationScheduler runs the periodic maintenance jobs.
type RecalculationScheduler struct {
	Job           *absence.RecalculationJob
	Absenteeism   *absence.AbsenteeismCalculator
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.Mutex
	last   time.Time
}

// NewRecalculationScheduler creates a new scheduler.
func NewRecalculationScheduler(job *absence.RecalculationJob, calc *absence.AbsenteeismCalculator, logger *zap.Logger) *RecalculationScheduler {
	if logger == nil {
		logger = zap.L()
	}
	return &RecalculationScheduler{
		Job:           job,
		Absenteeism:   calc,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		logger:        logger.Named("api.scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker, rs.stop)

	rs.logger.Info("scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to return.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.cancel()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("scheduler stopped")
	}
}

func (rs *RecalculationScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass: ledger rebuild, then absenteeism refresh.
func (rs *RecalculationScheduler) RunNow(ctx context.Context) {
	start := time.Now()

	if rs.Job != nil {
		if _, err := rs.Job.Run(ctx); err != nil {
			rs.logger.Error("scheduled recalculation failed", zap.Error(err))
		}
	}
	if rs.Absenteeism != nil {
		n, err := rs.Absenteeism.RefreshAllEmployeeStats(ctx)
		if err != nil {
			rs.logger.Error("scheduled absenteeism refresh failed", zap.Error(err))
		} else {
			rs.logger.Info("scheduled absenteeism refresh done", zap.Int("employees", n))
		}
	}

	rs.lastMu.Lock()
	rs.last = start
	rs.lastMu.Unlock()
}

// LastRun returns when the last pass started (zero if none).
func (rs *RecalculationScheduler) LastRun() time.Time {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	return rs.last
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RecalculationScheduler) GetNextRunTime() time.Time {
	last := rs.LastRun()
	if last.IsZero() {
		return time.Now()
	}
	return last.Add(rs.CheckInterval)
}
