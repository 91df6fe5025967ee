package event

import (
	"database/sql"
	"time"

	"github.com/vigilhq/vigil/db"
	"github.com/vigilhq/vigil/errors"
)

// Store handles persistence of events
type Store struct {
	db *sql.DB
}

// NewStore creates a new event store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `id, client_id, title, summary, url, source, category, relevance,
	sentiment, occurred_at, discovered_at, fingerprint, insight, recommended_action,
	read, starred, note, created_at, updated_at`

// Create inserts an event. The database enforces fingerprint uniqueness per
// client, so a duplicate insert fails with a unique violation the caller can
// translate.
func (s *Store) Create(e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(query,
		e.ID,
		e.ClientID,
		e.Title,
		nullIfEmpty(e.Summary),
		nullIfEmpty(e.URL),
		e.Source,
		string(e.Category),
		e.Relevance,
		nullFloat(e.Sentiment),
		nullTime(e.OccurredAt),
		e.DiscoveredAt.Format(time.RFC3339),
		e.Fingerprint,
		nullIfEmpty(e.Insight),
		nullIfEmpty(e.RecommendedAction),
		boolToInt(e.Read),
		boolToInt(e.Starred),
		nullIfEmpty(e.Note),
		now,
		now,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(errors.ErrConflict,
				"event with fingerprint %s already exists for client %s", e.Fingerprint, e.ClientID)
		}
		return errors.Wrap(err, "failed to create event")
	}
	return nil
}

// CreateIdempotent inserts an event or, if an event with the same fingerprint
// already exists for the client, returns the existing row. created reports
// whether a new row was written. A unique violation followed by a failed
// lookup is retried once before the inconsistency is surfaced.
func (s *Store) CreateIdempotent(e *Event) (*Event, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := s.Create(e)
		if err == nil {
			return e, true, nil
		}
		if !errors.IsConflict(err) {
			return nil, false, err
		}

		existing, lookupErr := s.GetByFingerprint(e.ClientID, e.Fingerprint)
		if lookupErr == nil {
			return existing, false, nil
		}
		if !errors.IsNotFound(lookupErr) {
			return nil, false, lookupErr
		}
		// Row was deleted between insert and lookup; retry the insert once.
	}

	return nil, false, errors.Wrapf(errors.ErrConsistency,
		"event insert for client %s fingerprint %s kept conflicting with a row that cannot be read",
		e.ClientID, e.Fingerprint)
}

// Get retrieves an event by ID
func (s *Store) Get(id string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "event %s", id)
		}
		return nil, errors.Wrap(err, "failed to get event")
	}
	return e, nil
}

// GetByFingerprint retrieves the event a (client, fingerprint) pair resolved to.
func (s *Store) GetByFingerprint(clientID, fingerprint string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE client_id = ? AND fingerprint = ?`
	e, err := scanEvent(s.db.QueryRow(query, clientID, fingerprint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound,
				"event for client %s fingerprint %s", clientID, fingerprint)
		}
		return nil, errors.Wrap(err, "failed to get event by fingerprint")
	}
	return e, nil
}

// ListByClient returns events for a client, newest discovery first.
func (s *Store) ListByClient(clientID string, limit int) ([]*Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE client_id = ?
		ORDER BY discovered_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, clientID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetInsight attaches an insight narrative and recommended action.
func (s *Store) SetInsight(id, insight, recommendedAction string) error {
	return s.update(id,
		`UPDATE events SET insight = ?, recommended_action = ?, updated_at = ? WHERE id = ?`,
		nullIfEmpty(insight), nullIfEmpty(recommendedAction))
}

// MarkRead flags an event as read or unread.
func (s *Store) MarkRead(id string, read bool) error {
	return s.update(id,
		`UPDATE events SET read = ?, updated_at = ? WHERE id = ?`,
		boolToInt(read))
}

// SetStarred toggles the starred flag.
func (s *Store) SetStarred(id string, starred bool) error {
	return s.update(id,
		`UPDATE events SET starred = ?, updated_at = ? WHERE id = ?`,
		boolToInt(starred))
}

// SetNote replaces the free-text user note.
func (s *Store) SetNote(id, note string) error {
	return s.update(id,
		`UPDATE events SET note = ?, updated_at = ? WHERE id = ?`,
		nullIfEmpty(note))
}

// update runs a write with updated_at and id appended to args.
func (s *Store) update(id, query string, args ...interface{}) error {
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update event")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "event %s", id)
	}
	return nil
}

// CountByClientSince counts events discovered for a client after the cutoff.
func (s *Store) CountByClientSince(clientID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE client_id = ? AND discovered_at >= ?`,
		clientID, since.UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count events")
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	var category string
	var summary, url, occurredAt, insight, recommendedAction, note sql.NullString
	var sentiment sql.NullFloat64
	var read, starred int
	var discoveredAt, createdAt, updatedAt string

	err := row.Scan(
		&e.ID,
		&e.ClientID,
		&e.Title,
		&summary,
		&url,
		&e.Source,
		&category,
		&e.Relevance,
		&sentiment,
		&occurredAt,
		&discoveredAt,
		&e.Fingerprint,
		&insight,
		&recommendedAction,
		&read,
		&starred,
		&note,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Category = Category(category)
	e.Summary = summary.String
	e.URL = url.String
	e.Insight = insight.String
	e.RecommendedAction = recommendedAction.String
	e.Note = note.String
	e.Read = read != 0
	e.Starred = starred != 0

	if sentiment.Valid {
		v := sentiment.Float64
		e.Sentiment = &v
	}
	if occurredAt.Valid {
		t, err := time.Parse(time.RFC3339, occurredAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse occurred_at for event %s", e.ID)
		}
		e.OccurredAt = &t
	}

	e.DiscoveredAt, err = time.Parse(time.RFC3339, discoveredAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse discovered_at for event %s", e.ID)
	}
	e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for event %s", e.ID)
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for event %s", e.ID)
	}

	return &e, nil
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

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
