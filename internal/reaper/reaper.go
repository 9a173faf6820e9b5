// Package reaper is a supplemental cron-driven sweep for stale runs: a
// worker that crashed mid-run leaves its state record at status "running"
// forever, since only that worker's own Cancel/Run call would otherwise
// ever transition it. The reaper periodically reclaims these by checking
// whether the run's admission lock is still held; if not, nothing is still
// making progress on it, and it is failed out.
//
// Grounded on the teacher's internal/app/services/automation/scheduler.go
// cron-driven job loop, generalized from "run a user's scheduled job" to
// "sweep every running report" — and wired onto github.com/robfig/cron/v3,
// which the teacher's go.mod declares but nothing in this repo's stage
// engine itself has a use for.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/lock"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
	"github.com/bridgelab/reportpipeline/internal/state"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// Reaper sweeps the State Store for running reports whose admission lock
// has disappeared.
type Reaper struct {
	store   state.Store
	lockMgr lock.Manager
	log     *logger.Logger
	sched   *cron.Cron
}

// New builds a Reaper. It does not start sweeping until Start is called.
func New(store state.Store, lockMgr lock.Manager, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.NewDefault("reaper")
	}
	return &Reaper{store: store, lockMgr: lockMgr, log: log, sched: cron.New()}
}

// Start schedules SweepOnce on the given cron spec (e.g. "*/5 * * * *") and
// begins running it in the background. Call Stop to end the schedule.
func (r *Reaper) Start(spec string) error {
	_, err := r.sched.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := r.SweepOnce(ctx)
		if err != nil {
			r.log.WithField("component", "reaper").Warnf("sweep failed: %v", err)
			return
		}
		if n > 0 {
			r.log.WithField("component", "reaper").Infof("reclaimed %d stale run(s)", n)
		}
	})
	if err != nil {
		return err
	}
	r.sched.Start()
	return nil
}

// Stop ends the cron schedule and waits for any in-flight sweep to finish.
func (r *Reaper) Stop() {
	ctx := r.sched.Stop()
	<-ctx.Done()
}

// Descriptor advertises the Reaper for the worker's /healthz component
// list (internal/lifecycle).
func (r *Reaper) Descriptor() core.Descriptor {
	return core.Descriptor{Name: "stale-run-reaper", Domain: "report-pipeline", Layer: core.LayerOps}
}

// SweepOnce performs one pass over every stored report, reclaiming any
// whose state is "running" but whose admission lock no longer matches a
// live holder. It returns the number of runs it reclaimed.
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := r.store.ListReportIDs(ctx)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range ids {
		st, err := r.store.Get(ctx, id)
		if err != nil {
			if err == state.ErrNotFound {
				continue
			}
			r.log.WithField("report_id", id).Warnf("reaper: load state: %v", err)
			continue
		}
		if st.Status != report.StatusRunning {
			continue
		}

		held, err := r.lockHeld(ctx, id)
		if err != nil {
			r.log.WithField("report_id", id).Warnf("reaper: check lock: %v", err)
			continue
		}
		if held {
			continue
		}

		st.Status = report.StatusFailed
		st.Error = &report.RunError{
			Message: "reclaimed by reaper: admission lock lost with no worker extending it",
			Name:    string(pipelineerr.KindLockLost),
		}
		if err := r.store.Save(ctx, st); err != nil {
			r.log.WithField("report_id", id).Warnf("reaper: persist reclaimed state: %v", err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (r *Reaper) lockHeld(ctx context.Context, reportID string) (bool, error) {
	_, ok := r.lockMgr.CurrentValue(ctx, lock.Key(reportID))
	return ok, nil
}
