package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Store handles persistence of monitoring schedules
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const scheduleColumns = `
	id, tenant_id, name, target_all, target_client_ids,
	kind, minute_of_hour, hour_of_day, day_of_week, day_of_month, expression,
	active, deleted, last_run_at, next_run_at,
	consecutive_failures, last_error, last_error_at, last_run_id,
	created_at, updated_at`

// Create inserts a new schedule
func (s *Store) Create(sched *Schedule) error {
	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	targetIDs, err := json.Marshal(sched.TargetClientIDs)
	if err != nil {
		return errors.Wrap(err, "marshal target client ids")
	}

	_, err = s.db.Exec(query,
		sched.ID,
		sched.TenantID,
		sched.Name,
		boolToInt(sched.TargetAll),
		string(targetIDs),
		string(sched.Recurrence.Kind),
		sched.Recurrence.MinuteOfHour,
		sched.Recurrence.HourOfDay,
		int(sched.Recurrence.DayOfWeek),
		sched.Recurrence.DayOfMonth,
		nullIfEmpty(sched.Recurrence.Expression),
		boolToInt(sched.Active),
		boolToInt(sched.Deleted),
		nullTime(sched.LastRunAt),
		nullTime(sched.NextRunAt),
		sched.ConsecutiveFailures,
		nullIfEmpty(sched.LastError),
		nullTime(sched.LastErrorAt),
		nullIfEmpty(sched.LastRunID),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create schedule")
	}

	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "schedule %s", id)
		}
		return nil, errors.Wrap(err, "failed to get schedule")
	}
	return sched, nil
}

// Update persists mutable schedule fields.
// Identity, tenant, and created_at are immutable.
func (s *Store) Update(sched *Schedule) error {
	query := `
		UPDATE schedules
		SET name = ?,
		    target_all = ?,
		    target_client_ids = ?,
		    kind = ?,
		    minute_of_hour = ?,
		    hour_of_day = ?,
		    day_of_week = ?,
		    day_of_month = ?,
		    expression = ?,
		    active = ?,
		    deleted = ?,
		    last_run_at = ?,
		    next_run_at = ?,
		    consecutive_failures = ?,
		    last_error = ?,
		    last_error_at = ?,
		    last_run_id = ?,
		    updated_at = ?
		WHERE id = ?
	`

	targetIDs, err := json.Marshal(sched.TargetClientIDs)
	if err != nil {
		return errors.Wrap(err, "marshal target client ids")
	}

	result, err := s.db.Exec(query,
		sched.Name,
		boolToInt(sched.TargetAll),
		string(targetIDs),
		string(sched.Recurrence.Kind),
		sched.Recurrence.MinuteOfHour,
		sched.Recurrence.HourOfDay,
		int(sched.Recurrence.DayOfWeek),
		sched.Recurrence.DayOfMonth,
		nullIfEmpty(sched.Recurrence.Expression),
		boolToInt(sched.Active),
		boolToInt(sched.Deleted),
		nullTime(sched.LastRunAt),
		nullTime(sched.NextRunAt),
		sched.ConsecutiveFailures,
		nullIfEmpty(sched.LastError),
		nullTime(sched.LastErrorAt),
		nullIfEmpty(sched.LastRunID),
		time.Now().UTC().Format(time.RFC3339),
		sched.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update schedule")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "schedule %s", sched.ID)
	}

	return nil
}

// ListDue returns active schedules whose next fire time is at or before now.
// Results are ordered by next_run_at ASC (oldest due first) for deterministic
// execution. Limited to 100 per poll to keep a single tick bounded; the next
// tick picks up the remainder.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE active = 1 AND deleted = 0
		  AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT 100
	`

	rows, err := s.db.QueryContext(ctx, query, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}

	return schedules, rows.Err()
}

// ListByTenant returns all non-deleted schedules for a tenant.
func (s *Store) ListByTenant(tenantID string) ([]*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE tenant_id = ? AND deleted = 0
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}

	return schedules, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanSchedule
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var sched Schedule
	var targetAll, active, deleted int
	var kind string
	var dayOfWeek int
	var targetIDs, expression, lastRunAt, nextRunAt, lastError, lastErrorAt, lastRunID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&sched.ID,
		&sched.TenantID,
		&sched.Name,
		&targetAll,
		&targetIDs,
		&kind,
		&sched.Recurrence.MinuteOfHour,
		&sched.Recurrence.HourOfDay,
		&dayOfWeek,
		&sched.Recurrence.DayOfMonth,
		&expression,
		&active,
		&deleted,
		&lastRunAt,
		&nextRunAt,
		&sched.ConsecutiveFailures,
		&lastError,
		&lastErrorAt,
		&lastRunID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.TargetAll = targetAll != 0
	sched.Active = active != 0
	sched.Deleted = deleted != 0
	sched.Recurrence.Kind = Kind(kind)
	sched.Recurrence.DayOfWeek = time.Weekday(dayOfWeek)
	sched.Recurrence.Expression = expression.String
	sched.LastError = lastError.String
	sched.LastRunID = lastRunID.String

	if targetIDs.Valid && targetIDs.String != "" {
		if err := json.Unmarshal([]byte(targetIDs.String), &sched.TargetClientIDs); err != nil {
			return nil, errors.Wrapf(err, "failed to parse target_client_ids for schedule %s", sched.ID)
		}
	}

	if sched.LastRunAt, err = parseNullTime(lastRunAt, "last_run_at", sched.ID); err != nil {
		return nil, err
	}
	if sched.NextRunAt, err = parseNullTime(nextRunAt, "next_run_at", sched.ID); err != nil {
		return nil, err
	}
	if sched.LastErrorAt, err = parseNullTime(lastErrorAt, "last_error_at", sched.ID); err != nil {
		return nil, err
	}

	sched.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for schedule %s", sched.ID)
	}
	sched.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for schedule %s", sched.ID)
	}

	return &sched, nil
}

func parseNullTime(ns sql.NullString, field, id string) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s for schedule %s", field, id)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
