package signal

import (
	"database/sql"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Store handles persistence of raw signals
type Store struct {
	db *sql.DB
}

// NewStore creates a new raw signal store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a raw signal record
func (s *Store) Create(sig *RawSignal) error {
	query := `
		INSERT INTO raw_signals (id, run_id, client_id, source, payload, fingerprint, processed, event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var eventID interface{}
	if sig.EventID != "" {
		eventID = sig.EventID
	}

	_, err := s.db.Exec(query,
		sig.ID,
		sig.RunID,
		sig.ClientID,
		sig.Source,
		sig.Payload,
		sig.Fingerprint,
		boolToInt(sig.Processed),
		eventID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create raw signal")
	}
	return nil
}

// MarkProcessed flags a signal as consumed and links it to the event it
// produced. eventID is empty when the signal was deduplicated away.
func (s *Store) MarkProcessed(id, eventID string) error {
	var ev interface{}
	if eventID != "" {
		ev = eventID
	}

	result, err := s.db.Exec(
		`UPDATE raw_signals SET processed = 1, event_id = ? WHERE id = ?`,
		ev, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark signal processed")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "raw signal %s", id)
	}
	return nil
}

// MarkProcessedByFingerprint flags every signal in a run sharing the
// fingerprint, covering the duplicates dedup dropped from the merged set.
func (s *Store) MarkProcessedByFingerprint(runID, clientID, fingerprint, eventID string) error {
	var ev interface{}
	if eventID != "" {
		ev = eventID
	}

	_, err := s.db.Exec(
		`UPDATE raw_signals SET processed = 1, event_id = ? WHERE run_id = ? AND client_id = ? AND fingerprint = ?`,
		ev, runID, clientID, fingerprint)
	if err != nil {
		return errors.Wrap(err, "failed to mark signals processed")
	}
	return nil
}

// KnownFingerprints returns the set of fingerprints already recorded for a
// client, used to filter re-collected stories across runs.
func (s *Store) KnownFingerprints(clientID string) (map[string]bool, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT fingerprint FROM raw_signals WHERE client_id = ? AND processed = 1`,
		clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query known fingerprints")
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		known[fp] = true
	}
	return known, rows.Err()
}

// ListByRun returns all raw signals captured during a run.
func (s *Store) ListByRun(runID string) ([]*RawSignal, error) {
	query := `
		SELECT id, run_id, client_id, source, payload, fingerprint, processed, event_id, created_at
		FROM raw_signals
		WHERE run_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list raw signals")
	}
	defer rows.Close()

	var signals []*RawSignal
	for rows.Next() {
		var sig RawSignal
		var processed int
		var eventID sql.NullString
		var createdAt string

		err := rows.Scan(
			&sig.ID,
			&sig.RunID,
			&sig.ClientID,
			&sig.Source,
			&sig.Payload,
			&sig.Fingerprint,
			&processed,
			&eventID,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		sig.Processed = processed != 0
		sig.EventID = eventID.String
		sig.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse created_at for signal %s", sig.ID)
		}

		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
