/*
scheduler.go - Automated balance maintenance

PURPOSE:
  Periodically runs the two balance-maintenance jobs so nobody has to
  remember to trigger them:
  - monthly accrual for the current (year, month)
  - the yearly emergency reset for the current year

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Every check is safe to repeat: both jobs are idempotent per period, so a
    restart or a second replica only produces AlreadyProcessed results
  - The emergency reset runs on 1 January, or on any day when CatchUp is set
    and the current year has not been reset yet (a server that was down on
    1 January still resets)

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Enabled:  Whether the scheduler is active (default: true)
  - CatchUp:  Whether a missed yearly reset runs late (default: true)

USAGE:
  scheduler := NewMaintenanceScheduler(svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers_workflow.go: RunAccrual / RunEmergencyReset / RunMaintenance endpoints
  - leave/accrual.go, leave/reset.go: the jobs themselves
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Maintainer is the part of leave.Service the scheduler drives.
type Maintainer interface {
	RunMonthlyAccrual(ctx context.Context, asOf generic.Date) (leave.AccrualResult, error)
	RunEmergencyReset(ctx context.Context, asOf generic.Date) (leave.ResetResult, error)
	EmergencyResetDone(ctx context.Context, year int) (bool, error)
}

// MaintenanceReport is the outcome of one check.
type MaintenanceReport struct {
	Date    string            `json:"date"`
	Accrual *AccrualResultDTO `json:"accrual,omitempty"`
	Reset   *ResetResultDTO   `json:"emergency_reset,omitempty"`
	NextRun string            `json:"next_run,omitempty"`
}

// MaintenanceScheduler handles automated accrual and emergency resets.
type MaintenanceScheduler struct {
	Service  Maintainer
	Interval time.Duration
	Enabled  bool
	CatchUp  bool
	Now      func() time.Time
	Log      *logrus.Entry

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// run serializes checks between the ticker and RunNow.
	run sync.Mutex
}

// NewMaintenanceScheduler creates a new scheduler.
func NewMaintenanceScheduler(svc Maintainer, log *logrus.Entry) *MaintenanceScheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MaintenanceScheduler{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
		CatchUp:  true,
		Now:      time.Now,
		Log:      log.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (ms *MaintenanceScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.Log.Info("scheduler disabled, not starting")
		return
	}
	if ms.ticker != nil {
		return
	}

	ms.ticker = time.NewTicker(ms.Interval)
	ms.stop = make(chan struct{})
	ms.wg.Add(1)

	go ms.loop()

	ms.Log.WithField("interval", ms.Interval.String()).Info("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (ms *MaintenanceScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		ms.ticker = nil
		ms.Log.Info("scheduler stopped")
	}
}

func (ms *MaintenanceScheduler) loop() {
	defer ms.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ms.stop
		cancel()
	}()

	// Run immediately on start
	ms.check(ctx)

	for {
		select {
		case <-ms.ticker.C:
			ms.check(ctx)
		case <-ms.stop:
			return
		}
	}
}

func (ms *MaintenanceScheduler) check(ctx context.Context) {
	if _, err := ms.RunNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		ms.Log.WithError(err).Error("maintenance check failed")
	}
}

// RunNow performs one check immediately and reports what ran.
func (ms *MaintenanceScheduler) RunNow(ctx context.Context) (MaintenanceReport, error) {
	ms.run.Lock()
	defer ms.run.Unlock()

	now := time.Now
	if ms.Now != nil {
		now = ms.Now
	}
	today := generic.DateOf(now())
	report := MaintenanceReport{Date: today.String()}

	accrual, err := ms.Service.RunMonthlyAccrual(ctx, today)
	if err != nil {
		return report, err
	}
	dto := toAccrualResultDTO(accrual)
	report.Accrual = &dto

	due, err := ms.resetDue(ctx, today)
	if err != nil {
		return report, err
	}
	if due {
		res, err := ms.Service.RunEmergencyReset(ctx, today)
		if err != nil {
			return report, err
		}
		rdto := toResetResultDTO(res)
		report.Reset = &rdto
	}

	if ms.Enabled {
		report.NextRun = ms.NextRunTime().Format(time.RFC3339)
	}

	ms.Log.WithFields(logrus.Fields{
		"date":            report.Date,
		"accrual_skipped": accrual.AlreadyProcessed,
		"reset_ran":       report.Reset != nil && !report.Reset.AlreadyProcessed,
	}).Debug("maintenance check completed")
	return report, nil
}

func (ms *MaintenanceScheduler) resetDue(ctx context.Context, today generic.Date) (bool, error) {
	if today.Month() == time.January && today.Day() == 1 {
		return true, nil
	}
	if !ms.CatchUp {
		return false, nil
	}
	done, err := ms.Service.EmergencyResetDone(ctx, today.Year())
	if err != nil {
		return false, err
	}
	return !done, nil
}

// NextRunTime returns when the next scheduled check will occur.
func (ms *MaintenanceScheduler) NextRunTime() time.Time {
	if ms.Now != nil {
		return ms.Now().Add(ms.Interval)
	}
	return time.Now().Add(ms.Interval)
}
