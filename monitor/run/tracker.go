package run

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
)

// OutcomeRecorder receives the terminal outcome of a scheduled run. The
// schedule registry implements this to maintain failure counters.
type OutcomeRecorder interface {
	RecordOutcome(scheduleID, runID string, success bool, errorMessage string) error
}

// Tracker owns the run lifecycle. Runs move pending -> running -> completed
// or failed, and a terminal run never changes again.
type Tracker struct {
	store    *Store
	recorder OutcomeRecorder
	log      *zap.SugaredLogger
	mu       sync.Mutex
}

// NewTracker creates a run tracker. recorder may be nil for manual runs
// that have no schedule to report back to.
func NewTracker(store *Store, recorder OutcomeRecorder, log *zap.SugaredLogger) *Tracker {
	return &Tracker{
		store:    store,
		recorder: recorder,
		log:      log,
	}
}

// Open creates a new pending run. scheduleID is empty for manual runs.
func (t *Tracker) Open(scheduleID string) (*Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	r := &Run{
		ID:         uuid.New().String(),
		ScheduleID: scheduleID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := t.store.Create(r); err != nil {
		return nil, err
	}

	t.log.Infow("Run opened",
		"run_id", r.ID,
		"schedule_id", scheduleID)

	return r, nil
}

// Start transitions a run to running and stamps its start time.
func (t *Tracker) Start(id string) (*Run, error) {
	return t.transition(id, StatusRunning, func(r *Run) {
		now := time.Now().UTC()
		r.StartedAt = &now
	})
}

// Complete transitions a run to completed and records its final counters.
func (t *Tracker) Complete(id string, counters Counters) (*Run, error) {
	r, err := t.transition(id, StatusCompleted, func(r *Run) {
		now := time.Now().UTC()
		r.CompletedAt = &now
		r.Counters = counters
	})
	if err != nil {
		return nil, err
	}

	t.log.Infow("Run completed",
		"run_id", r.ID,
		"schedule_id", r.ScheduleID,
		"entities_processed", counters.EntitiesProcessed,
		"signals_found", counters.SignalsFound,
		"signals_new", counters.SignalsNew,
		"notifications_sent", counters.NotificationsSent)

	t.recordOutcome(r, true, "")
	return r, nil
}

// Fail transitions a run to failed with an error message. Failing is legal
// from both pending and running.
func (t *Tracker) Fail(id string, errorMessage string) (*Run, error) {
	r, err := t.transition(id, StatusFailed, func(r *Run) {
		now := time.Now().UTC()
		r.CompletedAt = &now
		r.ErrorMessage = errorMessage
	})
	if err != nil {
		return nil, err
	}

	t.log.Warnw("Run failed",
		"run_id", r.ID,
		"schedule_id", r.ScheduleID,
		"error", errorMessage)

	t.recordOutcome(r, false, errorMessage)
	return r, nil
}

// Get retrieves a run by ID.
func (t *Tracker) Get(id string) (*Run, error) {
	return t.store.Get(id)
}

// History returns recent runs for a schedule, newest first.
func (t *Tracker) History(scheduleID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.store.ListBySchedule(scheduleID, limit)
}

// Stats returns run counts by status.
func (t *Tracker) Stats() (map[Status]int, error) {
	return t.store.CountByStatus()
}

func (t *Tracker) transition(id string, to Status, apply func(*Run)) (*Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.store.Get(id)
	if err != nil {
		return nil, err
	}

	if !canTransition(r.Status, to) {
		return nil, errors.Wrapf(errors.ErrConsistency,
			"invalid run transition %s -> %s for run %s", r.Status, to, id)
	}

	r.Status = to
	apply(r)
	r.UpdatedAt = time.Now().UTC()

	if err := t.store.Update(r); err != nil {
		return nil, err
	}

	return r, nil
}

func (t *Tracker) recordOutcome(r *Run, success bool, errorMessage string) {
	if t.recorder == nil || r.ScheduleID == "" {
		return
	}
	if err := t.recorder.RecordOutcome(r.ScheduleID, r.ID, success, errorMessage); err != nil {
		t.log.Errorw("Failed to record run outcome on schedule",
			"run_id", r.ID,
			"schedule_id", r.ScheduleID,
			"error", err)
	}
}
