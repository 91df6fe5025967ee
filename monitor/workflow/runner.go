package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/run"
	"github.com/vigilhq/vigil/monitor/schedule"
)

// Runner bridges the schedule ticker to the engine. Trigger is non-blocking:
// each run executes in its own goroutine so a slow run never delays the
// ticker's next due-check.
type Runner struct {
	engine  *Engine
	tracker *run.Tracker
	clients *entity.Store
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

// NewRunner creates a runner over the engine and tracker.
func NewRunner(engine *Engine, tracker *run.Tracker, clients *entity.Store, log *zap.SugaredLogger) *Runner {
	return &Runner{
		engine:  engine,
		tracker: tracker,
		clients: clients,
		log:     log,
	}
}

// Trigger starts a scheduled run asynchronously. The run outcome reaches the
// schedule registry through the tracker's outcome recorder.
func (r *Runner) Trigger(ctx context.Context, sched *schedule.Schedule) {
	jobRun, err := r.tracker.Open(sched.ID)
	if err != nil {
		r.log.Errorw("Failed to open run for schedule",
			"schedule_id", sched.ID,
			"error", err)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		targets, err := r.resolveTargets(sched)
		if err != nil {
			r.fail(jobRun.ID, err)
			return
		}
		r.execute(ctx, jobRun.ID, targets, sched.TargetAll)
	}()
}

// RunSchedule executes one schedule synchronously for manual triggers.
func (r *Runner) RunSchedule(ctx context.Context, sched *schedule.Schedule) (*run.Run, error) {
	jobRun, err := r.tracker.Open(sched.ID)
	if err != nil {
		return nil, err
	}

	targets, err := r.resolveTargets(sched)
	if err != nil {
		return r.fail(jobRun.ID, err)
	}
	return r.execute(ctx, jobRun.ID, targets, sched.TargetAll), nil
}

// RunEntities executes an ad-hoc run over an explicit client set, outside
// any schedule.
func (r *Runner) RunEntities(ctx context.Context, clientIDs []string) (*run.Run, error) {
	jobRun, err := r.tracker.Open("")
	if err != nil {
		return nil, err
	}

	targets, err := r.clients.GetMany(clientIDs)
	if err != nil {
		return r.fail(jobRun.ID, err)
	}
	return r.execute(ctx, jobRun.ID, targets, false), nil
}

// Wait blocks until all asynchronously triggered runs finish. Used during
// shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) resolveTargets(sched *schedule.Schedule) ([]*entity.Client, error) {
	if sched.TargetAll {
		return r.clients.List(sched.TenantID)
	}
	return r.clients.GetMany(sched.TargetClientIDs)
}

// execute drives the tracker state machine around one engine invocation.
// allowEmpty is set for all-clients schedules: a tenant with no tracked
// clients yet has nothing to monitor, which is a completed empty run, not a
// failure. Explicit target sets that resolve to nothing stay structural
// failures.
func (r *Runner) execute(ctx context.Context, runID string, targets []*entity.Client, allowEmpty bool) *run.Run {
	if _, err := r.tracker.Start(runID); err != nil {
		r.log.Errorw("Failed to start run", "run_id", runID, "error", err)
		return nil
	}

	if len(targets) == 0 && allowEmpty {
		r.log.Infow("No tracked clients to monitor, run completed empty", "run_id", runID)
		finished, err := r.tracker.Complete(runID, run.Counters{})
		if err != nil {
			r.log.Errorw("Failed to mark run completed", "run_id", runID, "error", err)
		}
		return finished
	}

	counters, err := r.engine.Execute(ctx, runID, targets)
	if err != nil {
		finished, failErr := r.tracker.Fail(runID, err.Error())
		if failErr != nil {
			r.log.Errorw("Failed to mark run failed", "run_id", runID, "error", failErr)
		}
		return finished
	}

	finished, err := r.tracker.Complete(runID, counters)
	if err != nil {
		r.log.Errorw("Failed to mark run completed", "run_id", runID, "error", err)
	}
	return finished
}

func (r *Runner) fail(runID string, cause error) (*run.Run, error) {
	finished, err := r.tracker.Fail(runID, cause.Error())
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark run failed")
	}
	return finished, nil
}
