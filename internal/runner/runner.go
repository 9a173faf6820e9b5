// Package runner implements the Pipeline Runner (spec.md §4.F): the sole
// orchestrator of a run. See types.go for the public request/response
// shapes this file operates on.
//
// Grounded on the teacher's oracle dispatcher
// (internal/app/services/oracle/dispatcher.go): a ticker-driven goroutine
// tracked by a sync.WaitGroup, cancelled via a stored context.CancelFunc,
// running alongside a main loop that selects on the same cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bridgelab/reportpipeline/internal/archive"
	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/lock"
	"github.com/bridgelab/reportpipeline/internal/opsapi"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
	"github.com/bridgelab/reportpipeline/internal/stages"
	"github.com/bridgelab/reportpipeline/internal/state"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// Runner drives one pipeline run end to end.
type Runner struct {
	store    state.Store
	lockMgr  lock.Manager
	execs    Executors
	lockCfg  LockConfig
	log      *logger.Logger
	now      func() time.Time
	metrics  *opsapi.Metrics
	bridging BridgingScorer
	archive  archive.Archive
}

// New builds a Runner.
func New(store state.Store, lockMgr lock.Manager, execs Executors, lockCfg LockConfig, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("pipeline-runner")
	}
	return &Runner{store: store, lockMgr: lockMgr, execs: execs, lockCfg: lockCfg, log: log, now: time.Now}
}

// WithMetrics attaches the Prometheus collectors the ops surface exposes
// under /metrics; a nil Runner metrics field is a safe no-op, so tests and
// callers that don't care about metrics never need to call this.
func (r *Runner) WithMetrics(m *opsapi.Metrics) *Runner {
	r.metrics = m
	return r
}

// WithBridging attaches the Bridging Scorer invoked after a successful run
// when the job requests it (spec.md §4.F data flow, §4.G). Nil is a safe
// no-op: job.Options.Bridging is then silently unactionable, matching how
// WithMetrics/WithArchive degrade when unattached.
func (r *Runner) WithBridging(b BridgingScorer) *Runner {
	r.bridging = b
	return r
}

// WithArchive attaches the run-analytics archive every terminal run is
// best-effort recorded into.
func (r *Runner) WithArchive(a archive.Archive) *Runner {
	r.archive = a
	return r
}

// Descriptor advertises the Runner for the worker's /healthz component list
// (internal/lifecycle), reporting which optional dependencies are attached
// as capabilities rather than hiding them behind an opaque "ok".
func (r *Runner) Descriptor() core.Descriptor {
	d := core.Descriptor{Name: "pipeline-runner", Domain: "report-pipeline", Layer: core.LayerEngine}
	if r.metrics != nil {
		d = d.WithCapabilities("metrics")
	}
	if r.bridging != nil {
		d = d.WithCapabilities("bridging")
	}
	if r.archive != nil {
		d = d.WithCapabilities("archive")
	}
	return d
}

// stageRun is one entry of the Runner's generic stage loop: loadResult
// attempts to populate the stage's local output variable from a previously
// stored result (resume path); execute runs the stage fresh and stores its
// output both locally and into state.
type stageRun struct {
	name        report.StageName
	loadResult  func() (bool, error)
	execute     func(ctx context.Context) (stages.Usage, error)
}

// Run executes job end to end, returning the final typed outputs on
// success. Every early return releases the admission lock; a successful
// return extends it instead, leaving release to the caller's publication
// step (spec.md §4.F "Post-run").
func (r *Runner) Run(ctx context.Context, job JobDescriptor, cfgs StageConfigs, observer ProgressObserver) (*RunResult, error) {
	if observer == nil {
		observer = NoopProgressObserver{}
	}

	owner := lock.NewOwnerToken()
	lockKey := lock.Key(job.ReportID)
	acquired, err := r.lockMgr.Acquire(ctx, lockKey, owner, r.lockCfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return nil, pipelineerr.AlreadyRunning(job.ReportID)
	}

	if r.metrics != nil {
		r.metrics.RunsStarted.WithLabelValues().Inc()
		r.metrics.RunsInFlight.Inc()
	}

	succeeded := false
	runStatus := "failed"
	defer func() {
		if !succeeded {
			_, _ = r.lockMgr.Release(ctx, lockKey, owner)
		}
		if r.metrics != nil {
			r.metrics.RunsInFlight.Dec()
			r.metrics.RunsCompleted.WithLabelValues(runStatus).Inc()
		}
	}()

	st, err := r.loadOrInitState(ctx, job)
	if err != nil {
		return nil, err
	}

	st.Status = report.StatusRunning
	if err := r.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("persist initial state: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	heartbeatErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go r.heartbeat(runCtx, &wg, lockKey, owner, cancelRun, heartbeatErr)
	defer func() {
		cancelRun()
		wg.Wait()
	}()

	var out Outputs
	runs := r.stagePlan(job, cfgs, st, &out)

	totalStages := len(report.Stages)
	if !job.Options.CruxesEnabled {
		totalStages = len(report.Stages) - 1
	}
	completedStages := r.countAlreadyDone(st, job.Options.CruxesEnabled)

	for _, sr := range runs {
		if runCtx.Err() != nil {
			return nil, r.failAndRelease(ctx, st, "", pipelineerr.LockLost("lock lost during run: %v", ctxErr(runCtx, heartbeatErr)))
		}

		if sr.name == report.StageCruxes && !job.Options.CruxesEnabled {
			r.markSkipped(st, sr.name)
			if err := r.store.Save(ctx, st); err != nil {
				return nil, fmt.Errorf("persist skipped cruxes stage: %w", err)
			}
			continue
		}

		analytics := st.StageAnalytics[sr.name]
		if analytics.Status == report.StageStatusCompleted {
			ok, verr := sr.loadResult()
			if verr != nil {
				if st.ValidationFailures[sr.name] >= state.MaxValidationFailures {
					return nil, r.failAndRelease(ctx, st, sr.name, pipelineerr.StateCorrupt(sr.name, verr, "stage %s result failed validation %d times", sr.name, st.ValidationFailures[sr.name]+1))
				}
				st.ValidationFailures[sr.name]++
				if serr := r.store.Save(ctx, st); serr != nil {
					r.log.WithField("report_id", job.ReportID).Warnf("persist validation failure count: %v", serr)
				}
				// Fall through and re-execute this stage.
			} else if ok {
				completedStages++
				observer.Notify(r.progress(job.ReportID, sr.name, totalStages, completedStages))
				continue
			}
		}

		st.CurrentStage = sr.name
		startedAt := r.now()
		st.StageAnalytics[sr.name] = report.StageAnalytics{Status: report.StageStatusInProgress, StartedAt: &startedAt}
		if err := r.store.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("persist stage start: %w", err)
		}

		stageCtx := logger.WithContext(runCtx, r.log.ForRun(job.ReportID, job.UserID, string(sr.name)))
		usage, err := sr.execute(stageCtx)
		completedAt := r.now()
		if err != nil {
			st.StageAnalytics[sr.name] = report.StageAnalytics{
				Status:      report.StageStatusFailed,
				StartedAt:   &startedAt,
				CompletedAt: &completedAt,
				DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
				ErrorMessage: err.Error(),
			}
			return nil, r.failAndRelease(ctx, st, sr.name, pipelineerr.StageFailure(sr.name, err, "stage %s failed: %v", sr.name, err))
		}

		st.StageAnalytics[sr.name] = report.StageAnalytics{
			Status:       report.StageStatusCompleted,
			StartedAt:    &startedAt,
			CompletedAt:  &completedAt,
			DurationMs:   completedAt.Sub(startedAt).Milliseconds(),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.TotalTokens,
		}
		st.RecalculateTotals()
		if r.metrics != nil {
			r.metrics.StageDuration.WithLabelValues(string(sr.name)).Observe(completedAt.Sub(startedAt).Seconds())
			r.metrics.TokensTotal.WithLabelValues(string(sr.name)).Add(float64(usage.TotalTokens))
			r.metrics.CostTotal.WithLabelValues(string(sr.name)).Add(st.StageAnalytics[sr.name].Cost)
		}

		result, resErr := r.stageResultFor(sr.name, &out)
		if resErr != nil {
			return nil, r.failAndRelease(ctx, st, sr.name, pipelineerr.StageFailure(sr.name, resErr, "stage %s produced no storable result: %v", sr.name, resErr))
		}
		if err := st.SetStageResult(sr.name, result); err != nil {
			return nil, fmt.Errorf("encode %s result: %w", sr.name, err)
		}

		saveResult, err := r.store.SaveWithLockGuard(ctx, st, lockKey, owner)
		if err != nil {
			return nil, fmt.Errorf("persist stage %s result: %w", sr.name, err)
		}
		if saveResult == state.SaveLockLost {
			return nil, pipelineerr.LockLost("lock stolen while persisting stage %s", sr.name)
		}

		completedStages++
		observer.Notify(r.progress(job.ReportID, sr.name, totalStages, completedStages))
	}

	if job.Options.Bridging && r.bridging != nil {
		bridgingCtx := logger.WithContext(runCtx, r.log.ForRun(job.ReportID, job.UserID, "bridging"))
		result := r.bridging.Walk(bridgingCtx, out.SortedTree.Topics)
		out.BridgingScores = result.Scores
		if result.CircuitOpen {
			r.log.WithField("report_id", job.ReportID).Warnf("bridging scorer circuit opened after %d/%d items", result.ErrorCount, result.Processed)
		}
	}

	st.Status = report.StatusCompleted
	st.CurrentStage = ""
	st.RecalculateTotals()
	if err := r.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("persist completed state: %w", err)
	}

	if _, err := r.lockMgr.Extend(ctx, lockKey, owner, r.lockCfg.PostCompletionExtension); err != nil {
		r.log.WithField("report_id", job.ReportID).Warnf("extend lock for publication window: %v", err)
	}
	succeeded = true
	runStatus = "completed"
	r.archiveRun(ctx, st)

	return &RunResult{Outputs: out, State: st}, nil
}

// Cancel transitions a running state to failed without interrupting
// whatever I/O is currently in flight (spec.md §4.F "Cancellation").
func (r *Runner) Cancel(ctx context.Context, reportID string) error {
	_, err := r.store.Update(ctx, reportID, func(s *report.State) error {
		if s.Status != report.StatusRunning {
			return nil
		}
		s.Status = report.StatusFailed
		s.Error = &report.RunError{Message: "cancelled by user", Name: string(pipelineerr.KindCancelled)}
		return nil
	})
	return err
}

func (r *Runner) loadOrInitState(ctx context.Context, job JobDescriptor) (*report.State, error) {
	existing, err := r.store.Get(ctx, job.ReportID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("load state: %w", err)
	}

	if job.Options.ResumeFromState {
		if existing == nil {
			return nil, pipelineerr.CannotResume("no prior run found for report %s", job.ReportID)
		}
		if existing.Status == report.StatusCompleted || existing.Status == report.StatusPending {
			return nil, pipelineerr.CannotResume("report %s state is %s and cannot be resumed", job.ReportID, existing.Status)
		}
		return existing, nil
	}

	return report.NewInitialState(job.ReportID, job.UserID, r.now), nil
}

func (r *Runner) markSkipped(st *report.State, stage report.StageName) {
	now := r.now()
	st.StageAnalytics[stage] = report.StageAnalytics{Status: report.StageStatusSkipped, StartedAt: &now, CompletedAt: &now}
}

func (r *Runner) countAlreadyDone(st *report.State, cruxesEnabled bool) int {
	count := 0
	for _, stage := range report.Stages {
		if stage == report.StageCruxes && !cruxesEnabled {
			continue
		}
		a, ok := st.StageAnalytics[stage]
		if ok && (a.Status == report.StageStatusCompleted || a.Status == report.StageStatusSkipped) {
			count++
		}
	}
	return count
}

func (r *Runner) progress(reportID string, stage report.StageName, total, completed int) ProgressUpdate {
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	return ProgressUpdate{ReportID: reportID, CurrentStage: stage, TotalStages: total, CompletedStages: completed, PercentComplete: pct}
}

func (r *Runner) failAndRelease(ctx context.Context, st *report.State, stage report.StageName, cause error) error {
	st.Status = report.StatusFailed
	st.Error = &report.RunError{Message: cause.Error(), Stage: stage}
	if kind, ok := pipelineerr.KindOf(cause); ok {
		st.Error.Name = string(kind)
	}
	if err := r.store.Save(ctx, st); err != nil {
		r.log.WithField("report_id", st.ReportID).Warnf("persist failed state: %v", err)
	}
	r.archiveRun(ctx, st)
	return cause
}

// archiveRun best-effort records a terminal run into the archive, if one
// is attached. Failures are logged, never surfaced to the caller: the
// archive is an audit trail, not part of the run's own success criteria.
func (r *Runner) archiveRun(ctx context.Context, st *report.State) {
	if r.archive == nil {
		return
	}
	if err := r.archive.Record(ctx, st); err != nil {
		r.log.WithField("report_id", st.ReportID).Warnf("archive run: %v", err)
	}
}

// heartbeat extends the admission lock every RefreshInterval, cancelling
// the run's context the moment an extension is refused or errors.
func (r *Runner) heartbeat(ctx context.Context, wg *sync.WaitGroup, lockKey, owner string, cancel context.CancelFunc, errOut chan<- error) {
	defer wg.Done()
	ticker := time.NewTicker(r.lockCfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.lockMgr.Extend(ctx, lockKey, owner, r.lockCfg.TTL)
			if err != nil {
				errOut <- err
				cancel()
				return
			}
			if !ok {
				errOut <- pipelineerr.LockLost("heartbeat: lock no longer held for %s", lockKey)
				cancel()
				return
			}
		}
	}
}

func ctxErr(ctx context.Context, heartbeatErr <-chan error) error {
	select {
	case err := <-heartbeatErr:
		return err
	default:
		return ctx.Err()
	}
}
