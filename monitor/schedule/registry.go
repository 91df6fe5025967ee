package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
)

// Registry owns schedule lifecycle: creation, activation, recurrence
// recomputation, and failure bookkeeping. All writes go through the
// registry's mutex so updates to a schedule are serialized even when a
// manual trigger races the poller.
type Registry struct {
	store *Store
	log   *zap.SugaredLogger
	mu    sync.Mutex
}

// NewRegistry creates a schedule registry over the given store
func NewRegistry(store *Store, log *zap.SugaredLogger) *Registry {
	return &Registry{store: store, log: log}
}

// Create validates the schedule, computes its initial next fire time, and
// persists it. Returns ErrValidation on malformed input before any mutation.
func (r *Registry) Create(sched *Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	sched.ConsecutiveFailures = 0

	if next := sched.Recurrence.NextFire(time.Now()); !next.IsZero() {
		sched.NextRunAt = &next
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Create(sched); err != nil {
		return err
	}

	r.log.Infow("Schedule created",
		"schedule_id", sched.ID,
		"name", sched.Name,
		"kind", sched.Recurrence.Kind,
		"next_run_at", sched.NextRunAt)
	return nil
}

// Update applies changes to a schedule, re-validating and recomputing the
// next fire time if recurrence parameters changed.
func (r *Registry) Update(id string, apply func(*Schedule)) (*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}

	before := sched.Recurrence
	apply(sched)

	if err := sched.Validate(); err != nil {
		return nil, err
	}

	if sched.Recurrence != before {
		if next := sched.Recurrence.NextFire(time.Now()); !next.IsZero() {
			sched.NextRunAt = &next
		} else {
			sched.NextRunAt = nil
		}
	}

	if err := r.store.Update(sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// Activate enables a schedule, resetting the consecutive-failure counter
// and clearing the last error. This is the only way out of auto-disable.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return err
	}

	sched.Active = true
	sched.ConsecutiveFailures = 0
	sched.LastError = ""
	sched.LastErrorAt = nil
	if next := sched.Recurrence.NextFire(time.Now()); !next.IsZero() {
		sched.NextRunAt = &next
	}

	if err := r.store.Update(sched); err != nil {
		return err
	}

	r.log.Infow("Schedule activated", "schedule_id", id, "next_run_at", sched.NextRunAt)
	return nil
}

// Deactivate disables a schedule without touching failure bookkeeping.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return err
	}

	sched.Active = false
	if err := r.store.Update(sched); err != nil {
		return err
	}

	r.log.Infow("Schedule deactivated", "schedule_id", id)
	return nil
}

// Delete soft-deletes a schedule. Historical runs keep their reference.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return err
	}

	sched.Deleted = true
	sched.Active = false
	return r.store.Update(sched)
}

// Get returns a schedule by ID.
func (r *Registry) Get(id string) (*Schedule, error) {
	return r.store.Get(id)
}

// Due returns the active schedules whose next fire time is at or before now.
// The result is recomputed on each poll, not a persistent cursor.
func (r *Registry) Due(ctx context.Context, now time.Time) ([]*Schedule, error) {
	return r.store.ListDue(ctx, now)
}

// MarkFired advances a schedule's next fire time at trigger time so the
// next poll does not re-fire it while its run is still in flight.
// RecordOutcome recomputes again on completion.
func (r *Registry) MarkFired(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return err
	}

	sched.LastRunAt = &now
	if next := sched.Recurrence.NextFire(now); !next.IsZero() {
		sched.NextRunAt = &next
	} else {
		sched.NextRunAt = nil
	}

	return r.store.Update(sched)
}

// RecordOutcome updates a schedule after a run finishes.
//
// On success the consecutive-failure counter resets and the next fire time
// advances by one recurrence period from now - not from the missed slot, so
// a stalled schedule does not replay a backlog. On failure the counter
// increments; at AutoDisableThreshold the schedule deactivates and stays
// off until explicitly reactivated.
func (r *Registry) RecordOutcome(id, runID string, success bool, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sched, err := r.store.Get(id)
	if err != nil {
		return err
	}

	now := time.Now()
	sched.LastRunAt = &now
	sched.LastRunID = runID

	if success {
		sched.ConsecutiveFailures = 0
		sched.LastError = ""
		sched.LastErrorAt = nil
	} else {
		sched.ConsecutiveFailures++
		sched.LastError = errorMessage
		sched.LastErrorAt = &now

		if sched.ConsecutiveFailures >= AutoDisableThreshold {
			sched.Active = false
			r.log.Warnw("Schedule auto-disabled after consecutive failures",
				"schedule_id", id,
				"consecutive_failures", sched.ConsecutiveFailures,
				"last_error", errorMessage)
		}
	}

	if next := sched.Recurrence.NextFire(now); !next.IsZero() {
		sched.NextRunAt = &next
	} else {
		sched.NextRunAt = nil
	}

	if err := r.store.Update(sched); err != nil {
		return errors.Wrap(err, "failed to record schedule outcome")
	}

	return nil
}
