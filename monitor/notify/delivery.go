package notify

import (
	"database/sql"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Channel names for delivery log rows.
const (
	ChannelInApp  = "in_app"
	ChannelEmail  = "email"
	ChannelDigest = "digest"
)

// DeliveryStatus is the state of one notification attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryBounced DeliveryStatus = "bounced"
)

// Delivery is a record of one notification attempt.
type Delivery struct {
	ID                string
	SubscriberID      string
	EventID           string // empty for digest and system messages
	Channel           string
	Recipient         string
	Status            DeliveryStatus
	RetryCount        int
	ProviderMessageID string
	Error             string
	OpenedAt          *time.Time
	ClickedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DeliveryStore handles persistence of delivery log rows
type DeliveryStore struct {
	db *sql.DB
}

// NewDeliveryStore creates a new delivery store
func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// Create inserts a delivery row, normally in pending state.
func (s *DeliveryStore) Create(d *Delivery) error {
	query := `
		INSERT INTO delivery_log (
			id, subscriber_id, event_id, channel, recipient, status,
			retry_count, provider_message_id, error, opened_at, clicked_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(query,
		d.ID,
		d.SubscriberID,
		nullIfEmpty(d.EventID),
		d.Channel,
		nullIfEmpty(d.Recipient),
		string(d.Status),
		d.RetryCount,
		nullIfEmpty(d.ProviderMessageID),
		nullIfEmpty(d.Error),
		nullTimePtr(d.OpenedAt),
		nullTimePtr(d.ClickedAt),
		now,
		now,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create delivery record")
	}
	return nil
}

// MarkSent records a successful send with the provider's correlation ID.
func (s *DeliveryStore) MarkSent(id, providerMessageID string) error {
	return s.update(id,
		`UPDATE delivery_log SET status = ?, provider_message_id = ?, updated_at = ? WHERE id = ?`,
		string(DeliverySent), nullIfEmpty(providerMessageID))
}

// MarkFailed records a failed attempt. retry_count only moves on failure.
func (s *DeliveryStore) MarkFailed(id, errorMessage string) error {
	return s.update(id,
		`UPDATE delivery_log SET status = ?, error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		string(DeliveryFailed), nullIfEmpty(errorMessage))
}

// RecordBounce moves a sent delivery to bounced. Bounce is the only
// transition allowed out of sent.
func (s *DeliveryStore) RecordBounce(id string) error {
	result, err := s.db.Exec(
		`UPDATE delivery_log SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(DeliveryBounced), time.Now().UTC().Format(time.RFC3339), id, string(DeliverySent))
	if err != nil {
		return errors.Wrap(err, "failed to record bounce")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrConsistency, "delivery %s is not in sent state", id)
	}
	return nil
}

// RecordOpen stamps the open timestamp from a provider callback.
func (s *DeliveryStore) RecordOpen(id string, at time.Time) error {
	return s.update(id,
		`UPDATE delivery_log SET opened_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339))
}

// RecordClick stamps the click timestamp from a provider callback.
func (s *DeliveryStore) RecordClick(id string, at time.Time) error {
	return s.update(id,
		`UPDATE delivery_log SET clicked_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339))
}

// Get retrieves a delivery by ID
func (s *DeliveryStore) Get(id string) (*Delivery, error) {
	query := `
		SELECT id, subscriber_id, event_id, channel, recipient, status,
		       retry_count, provider_message_id, error, opened_at, clicked_at,
		       created_at, updated_at
		FROM delivery_log
		WHERE id = ?
	`
	d, err := scanDelivery(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "delivery %s", id)
		}
		return nil, errors.Wrap(err, "failed to get delivery")
	}
	return d, nil
}

// ListPendingDigest returns pending digest rows for a subscriber, oldest
// first, for the external digest assembler.
func (s *DeliveryStore) ListPendingDigest(subscriberID string) ([]*Delivery, error) {
	query := `
		SELECT id, subscriber_id, event_id, channel, recipient, status,
		       retry_count, provider_message_id, error, opened_at, clicked_at,
		       created_at, updated_at
		FROM delivery_log
		WHERE subscriber_id = ? AND channel = ? AND status = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query, subscriberID, ChannelDigest, string(DeliveryPending))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending digest entries")
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (s *DeliveryStore) update(id, query string, args ...interface{}) error {
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update delivery")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "delivery %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(row scanner) (*Delivery, error) {
	var d Delivery
	var status string
	var eventID, recipient, providerMessageID, errMsg, openedAt, clickedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&d.ID,
		&d.SubscriberID,
		&eventID,
		&d.Channel,
		&recipient,
		&status,
		&d.RetryCount,
		&providerMessageID,
		&errMsg,
		&openedAt,
		&clickedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = DeliveryStatus(status)
	d.EventID = eventID.String
	d.Recipient = recipient.String
	d.ProviderMessageID = providerMessageID.String
	d.Error = errMsg.String

	if openedAt.Valid {
		t, err := time.Parse(time.RFC3339, openedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse opened_at for delivery %s", d.ID)
		}
		d.OpenedAt = &t
	}
	if clickedAt.Valid {
		t, err := time.Parse(time.RFC3339, clickedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse clicked_at for delivery %s", d.ID)
		}
		d.ClickedAt = &t
	}

	d.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for delivery %s", d.ID)
	}
	d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for delivery %s", d.ID)
	}

	return &d, nil
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
