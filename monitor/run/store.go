package run

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Store handles persistence of job runs
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new run record
func (s *Store) Create(r *Run) error {
	query := `
		INSERT INTO job_runs (
			id, schedule_id, status, started_at, completed_at,
			entities_processed, signals_found, signals_new, notifications_sent,
			error_message, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	var metadata interface{}
	if len(r.Metadata) > 0 {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return errors.Wrap(err, "marshal run metadata")
		}
		metadata = string(data)
	}

	var scheduleID interface{}
	if r.ScheduleID != "" {
		scheduleID = r.ScheduleID
	}

	_, err := s.db.Exec(query,
		r.ID,
		scheduleID,
		string(r.Status),
		nullTime(r.StartedAt),
		nullTime(r.CompletedAt),
		r.Counters.EntitiesProcessed,
		r.Counters.SignalsFound,
		r.Counters.SignalsNew,
		r.Counters.NotificationsSent,
		nullIfEmpty(r.ErrorMessage),
		metadata,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}

	return nil
}

// Update persists run mutations
func (s *Store) Update(r *Run) error {
	query := `
		UPDATE job_runs
		SET status = ?,
		    started_at = ?,
		    completed_at = ?,
		    entities_processed = ?,
		    signals_found = ?,
		    signals_new = ?,
		    notifications_sent = ?,
		    error_message = ?,
		    metadata = ?,
		    updated_at = ?
		WHERE id = ?
	`

	var metadata interface{}
	if len(r.Metadata) > 0 {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return errors.Wrap(err, "marshal run metadata")
		}
		metadata = string(data)
	}

	result, err := s.db.Exec(query,
		string(r.Status),
		nullTime(r.StartedAt),
		nullTime(r.CompletedAt),
		r.Counters.EntitiesProcessed,
		r.Counters.SignalsFound,
		r.Counters.SignalsNew,
		r.Counters.NotificationsSent,
		nullIfEmpty(r.ErrorMessage),
		metadata,
		time.Now().UTC().Format(time.RFC3339),
		r.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", r.ID)
	}

	return nil
}

// Get retrieves a run by ID
func (s *Store) Get(id string) (*Run, error) {
	query := `
		SELECT id, schedule_id, status, started_at, completed_at,
		       entities_processed, signals_found, signals_new, notifications_sent,
		       error_message, metadata, created_at, updated_at
		FROM job_runs
		WHERE id = ?
	`

	r, err := scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
		}
		return nil, errors.Wrap(err, "failed to get run")
	}
	return r, nil
}

// ListBySchedule returns the most recent runs for a schedule.
func (s *Store) ListBySchedule(scheduleID string, limit int) ([]*Run, error) {
	query := `
		SELECT id, schedule_id, status, started_at, completed_at,
		       entities_processed, signals_found, signals_new, notifications_sent,
		       error_message, metadata, created_at, updated_at
		FROM job_runs
		WHERE schedule_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, scheduleID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountByStatus returns run counts grouped by status.
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM job_runs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count runs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var status string
	var scheduleID, startedAt, completedAt, errorMessage, metadata sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&r.ID,
		&scheduleID,
		&status,
		&startedAt,
		&completedAt,
		&r.Counters.EntitiesProcessed,
		&r.Counters.SignalsFound,
		&r.Counters.SignalsNew,
		&r.Counters.NotificationsSent,
		&errorMessage,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.ScheduleID = scheduleID.String
	r.ErrorMessage = errorMessage.String

	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse started_at for run %s", r.ID)
		}
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse completed_at for run %s", r.ID)
		}
		r.CompletedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to parse metadata for run %s", r.ID)
		}
	}

	r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for run %s", r.ID)
	}
	r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for run %s", r.ID)
	}

	return &r, nil
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
