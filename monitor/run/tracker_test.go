package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	vigiltesting "github.com/vigilhq/vigil/internal/testing"
)

func newTestTracker(t *testing.T) *Tracker {
	database := vigiltesting.CreateTestDB(t)
	return NewTracker(NewStore(database), nil, zap.NewNop().Sugar())
}

func TestTrackerLifecycle(t *testing.T) {
	tracker := newTestTracker(t)

	r, err := tracker.Open("")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Nil(t, r.StartedAt)

	r, err = tracker.Start(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)
	require.NotNil(t, r.StartedAt)

	counters := Counters{
		EntitiesProcessed: 3,
		SignalsFound:      12,
		SignalsNew:        5,
		NotificationsSent: 2,
	}
	r, err = tracker.Complete(r.ID, counters)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, counters, r.Counters)

	stored, err := tracker.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, 12, stored.Counters.SignalsFound)
}

func TestTrackerFailFromPending(t *testing.T) {
	tracker := newTestTracker(t)

	r, err := tracker.Open("")
	require.NoError(t, err)

	r, err = tracker.Fail(r.ID, "entity lookup failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "entity lookup failed", r.ErrorMessage)
	require.NotNil(t, r.CompletedAt)
}

func TestTrackerTerminalIsImmutable(t *testing.T) {
	tracker := newTestTracker(t)

	r, err := tracker.Open("")
	require.NoError(t, err)
	_, err = tracker.Start(r.ID)
	require.NoError(t, err)
	_, err = tracker.Complete(r.ID, Counters{})
	require.NoError(t, err)

	_, err = tracker.Start(r.ID)
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))

	_, err = tracker.Fail(r.ID, "late failure")
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
}

func TestTrackerRejectsSkippedTransitions(t *testing.T) {
	tracker := newTestTracker(t)

	r, err := tracker.Open("")
	require.NoError(t, err)

	// Completing directly from pending skips the running state.
	_, err = tracker.Complete(r.ID, Counters{})
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
}

type recordedOutcome struct {
	scheduleID string
	runID      string
	success    bool
	message    string
}

type fakeRecorder struct {
	outcomes []recordedOutcome
}

func (f *fakeRecorder) RecordOutcome(scheduleID, runID string, success bool, errorMessage string) error {
	f.outcomes = append(f.outcomes, recordedOutcome{scheduleID, runID, success, errorMessage})
	return nil
}

func TestTrackerReportsOutcomeToRecorder(t *testing.T) {
	database := vigiltesting.CreateTestDB(t)
	recorder := &fakeRecorder{}
	tracker := NewTracker(NewStore(database), recorder, zap.NewNop().Sugar())

	// Schedules are referenced by foreign key, so seed one directly.
	_, err := database.Exec(`
		INSERT INTO schedules (id, tenant_id, name, kind, active, deleted, consecutive_failures, created_at, updated_at)
		VALUES ('sched-1', 'tenant-1', 'daily sweep', 'daily', 1, 0, 0, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`)
	require.NoError(t, err)

	r, err := tracker.Open("sched-1")
	require.NoError(t, err)
	_, err = tracker.Start(r.ID)
	require.NoError(t, err)
	_, err = tracker.Complete(r.ID, Counters{EntitiesProcessed: 1})
	require.NoError(t, err)

	require.Len(t, recorder.outcomes, 1)
	assert.Equal(t, "sched-1", recorder.outcomes[0].scheduleID)
	assert.Equal(t, r.ID, recorder.outcomes[0].runID)
	assert.True(t, recorder.outcomes[0].success)
}

func TestTrackerManualRunSkipsRecorder(t *testing.T) {
	database := vigiltesting.CreateTestDB(t)
	recorder := &fakeRecorder{}
	tracker := NewTracker(NewStore(database), recorder, zap.NewNop().Sugar())

	r, err := tracker.Open("")
	require.NoError(t, err)
	_, err = tracker.Start(r.ID)
	require.NoError(t, err)
	_, err = tracker.Complete(r.ID, Counters{})
	require.NoError(t, err)

	assert.Empty(t, recorder.outcomes)
}

func TestTrackerHistoryAndStats(t *testing.T) {
	database := vigiltesting.CreateTestDB(t)
	tracker := NewTracker(NewStore(database), nil, zap.NewNop().Sugar())

	_, err := database.Exec(`
		INSERT INTO schedules (id, tenant_id, name, kind, active, deleted, consecutive_failures, created_at, updated_at)
		VALUES ('sched-1', 'tenant-1', 'daily sweep', 'daily', 1, 0, 0, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r, err := tracker.Open("sched-1")
		require.NoError(t, err)
		_, err = tracker.Start(r.ID)
		require.NoError(t, err)
		_, err = tracker.Complete(r.ID, Counters{})
		require.NoError(t, err)
	}
	r, err := tracker.Open("sched-1")
	require.NoError(t, err)
	_, err = tracker.Fail(r.ID, "boom")
	require.NoError(t, err)

	runs, err := tracker.History("sched-1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 4)

	stats, err := tracker.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats[StatusCompleted])
	assert.Equal(t, 1, stats[StatusFailed])
}
