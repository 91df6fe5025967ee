package notify

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/event"
)

// PreferenceStore handles persistence of subscriber preferences
type PreferenceStore struct {
	db *sql.DB
}

// NewPreferenceStore creates a new preference store
func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the subscriber's preference, creating the default row on first
// access.
func (s *PreferenceStore) Get(subscriberID string) (*Preference, error) {
	p, err := s.lookup(subscriberID)
	if err == nil {
		return p, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	p = DefaultPreference(subscriberID)
	if err := s.insert(p); err != nil {
		// A concurrent first access may have created the row already.
		if existing, lookupErr := s.lookup(subscriberID); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return p, nil
}

// Update persists a modified preference.
func (s *PreferenceStore) Update(p *Preference) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE subscriber_preferences
		SET email = ?,
		    in_app_enabled = ?,
		    email_enabled = ?,
		    relevance_threshold = ?,
		    categories = ?,
		    frequency = ?,
		    assigned_only = ?,
		    digest_hour = ?,
		    updated_at = ?
		WHERE subscriber_id = ?
	`

	categories, err := marshalCategories(p.Categories)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(query,
		nullIfEmpty(p.Email),
		boolToInt(p.InAppEnabled),
		boolToInt(p.EmailEnabled),
		p.RelevanceThreshold,
		categories,
		string(p.Frequency),
		boolToInt(p.AssignedOnly),
		p.DigestHour,
		time.Now().UTC().Format(time.RFC3339),
		p.SubscriberID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update preference")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "preference for subscriber %s", p.SubscriberID)
	}
	return nil
}

func (s *PreferenceStore) insert(p *Preference) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO subscriber_preferences (
			subscriber_id, email, in_app_enabled, email_enabled,
			relevance_threshold, categories, frequency, assigned_only,
			digest_hour, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	categories, err := marshalCategories(p.Categories)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(query,
		p.SubscriberID,
		nullIfEmpty(p.Email),
		boolToInt(p.InAppEnabled),
		boolToInt(p.EmailEnabled),
		p.RelevanceThreshold,
		categories,
		string(p.Frequency),
		boolToInt(p.AssignedOnly),
		p.DigestHour,
		now,
		now,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create preference")
	}
	return nil
}

func (s *PreferenceStore) lookup(subscriberID string) (*Preference, error) {
	query := `
		SELECT subscriber_id, email, in_app_enabled, email_enabled,
		       relevance_threshold, categories, frequency, assigned_only,
		       digest_hour, created_at, updated_at
		FROM subscriber_preferences
		WHERE subscriber_id = ?
	`

	var p Preference
	var email, categories sql.NullString
	var inApp, emailEnabled, assignedOnly int
	var frequency, createdAt, updatedAt string

	err := s.db.QueryRow(query, subscriberID).Scan(
		&p.SubscriberID,
		&email,
		&inApp,
		&emailEnabled,
		&p.RelevanceThreshold,
		&categories,
		&frequency,
		&assignedOnly,
		&p.DigestHour,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "preference for subscriber %s", subscriberID)
		}
		return nil, errors.Wrap(err, "failed to get preference")
	}

	p.Email = email.String
	p.InAppEnabled = inApp != 0
	p.EmailEnabled = emailEnabled != 0
	p.AssignedOnly = assignedOnly != 0
	p.Frequency = Frequency(frequency)

	if categories.Valid {
		// A stored empty array is a block-all list, distinct from NULL.
		p.Categories = []event.Category{}
		if err := json.Unmarshal([]byte(categories.String), &p.Categories); err != nil {
			return nil, errors.Wrapf(err, "failed to parse categories for subscriber %s", subscriberID)
		}
	}

	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for subscriber %s", subscriberID)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for subscriber %s", subscriberID)
	}

	return &p, nil
}

// marshalCategories keeps the nil-vs-empty distinction through storage:
// nil maps to SQL NULL, an empty slice to the JSON empty array.
func marshalCategories(categories []event.Category) (interface{}, error) {
	if categories == nil {
		return nil, nil
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return nil, errors.Wrap(err, "marshal category allow-list")
	}
	return string(data), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
