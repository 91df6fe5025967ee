package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
)

// Runner executes a monitoring run for a due schedule. Implementations must
// not block: the ticker fires each due schedule and moves on so a slow run
// never delays detection of other due schedules.
type Runner interface {
	Trigger(ctx context.Context, sched *Schedule)
}

// Ticker polls the registry for due schedules and fires them.
// Scheduling is tick-driven cooperative polling: a timer evaluates the due
// query each interval; no persistent cursor is kept between polls.
type Ticker struct {
	registry *Registry
	runner   Runner
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the schedule ticker
type TickerConfig struct {
	Interval time.Duration // How often to check for due schedules (default: 30 seconds)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 30 * time.Second,
	}
}

// NewTicker creates a ticker with a parent context.
func NewTicker(ctx context.Context, registry *Registry, runner Runner, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		registry: registry,
		runner:   runner,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		log:      log.Named("ticker"),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.log.Infow("Schedule ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.log.Infow("Schedule ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			ticks := t.ticksSinceStart
			t.mu.Unlock()

			if err := t.checkDueSchedules(tickTime); err != nil {
				// Don't spam logs - log errors at warn level
				t.log.Warnw("Schedule tick error", "error", err, "tick", ticks)
			}
		}
	}
}

// checkDueSchedules finds due schedules and fires each through the runner.
// Firing is non-blocking; the runner owns run lifecycle and outcome
// reporting back into the registry.
func (t *Ticker) checkDueSchedules(now time.Time) error {
	due, err := t.registry.Due(t.ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list due schedules")
	}

	for _, sched := range due {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		t.log.Infow("Firing due schedule",
			"schedule_id", sched.ID,
			"name", sched.Name,
			"kind", sched.Recurrence.Kind,
			"next_run_at", sched.NextRunAt)

		// Advance next_run_at before triggering so the next poll does not
		// re-fire a schedule whose run is still in flight.
		if err := t.registry.MarkFired(sched.ID, now); err != nil {
			t.log.Errorw("Failed to mark schedule fired",
				"schedule_id", sched.ID,
				"error", err)
			continue
		}

		t.runner.Trigger(t.ctx, sched)
	}

	return nil
}

// Stats returns ticker statistics
func (t *Ticker) Stats() (lastTickAt time.Time, ticks int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTickAt, t.ticksSinceStart
}
