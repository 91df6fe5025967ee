package entity

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Store handles persistence of tracked clients
type Store struct {
	db *sql.DB
}

// NewStore creates a new client store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new client
func (s *Store) Create(c *Client) error {
	query := `
		INSERT INTO clients (id, tenant_id, name, domain, industry, keywords, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	keywords, err := json.Marshal(c.Keywords)
	if err != nil {
		return errors.Wrap(err, "marshal keywords")
	}

	_, err = s.db.Exec(query,
		c.ID,
		c.TenantID,
		c.Name,
		c.Domain,
		c.Industry,
		string(keywords),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create client")
	}

	return nil
}

// Get retrieves a client by ID
func (s *Store) Get(id string) (*Client, error) {
	query := `
		SELECT id, tenant_id, name, domain, industry, keywords, created_at, updated_at
		FROM clients
		WHERE id = ?
	`

	var c Client
	var domain, industry, keywords sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRow(query, id).Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&domain,
		&industry,
		&keywords,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "client %s", id)
		}
		return nil, errors.Wrap(err, "failed to get client")
	}

	c.Domain = domain.String
	c.Industry = industry.String
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &c.Keywords); err != nil {
			return nil, errors.Wrapf(err, "failed to parse keywords for client %s", id)
		}
	}

	c.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for client %s", id)
	}
	c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for client %s", id)
	}

	return &c, nil
}

// List returns all clients for a tenant
func (s *Store) List(tenantID string) ([]*Client, error) {
	query := `
		SELECT id, tenant_id, name, domain, industry, keywords, created_at, updated_at
		FROM clients
		WHERE tenant_id = ?
		ORDER BY name ASC
	`

	rows, err := s.db.Query(query, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list clients")
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		var domain, industry, keywords sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &domain, &industry, &keywords, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		c.Domain = domain.String
		c.Industry = industry.String
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &c.Keywords); err != nil {
				return nil, errors.Wrapf(err, "failed to parse keywords for client %s", c.ID)
			}
		}

		c.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse created_at for client %s", c.ID)
		}
		c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse updated_at for client %s", c.ID)
		}

		clients = append(clients, &c)
	}

	return clients, rows.Err()
}

// GetMany retrieves clients by IDs, skipping IDs that do not exist.
func (s *Store) GetMany(ids []string) ([]*Client, error) {
	var clients []*Client
	for _, id := range ids {
		c, err := s.Get(id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// Assign links a subscriber to a client for assignment-scoped notifications.
func (s *Store) Assign(clientID, subscriberID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO client_assignments (client_id, subscriber_id)
		VALUES (?, ?)
	`, clientID, subscriberID)
	if err != nil {
		return errors.Wrap(err, "failed to assign subscriber")
	}
	return nil
}

// Unassign removes a subscriber's assignment to a client.
func (s *Store) Unassign(clientID, subscriberID string) error {
	_, err := s.db.Exec(`
		DELETE FROM client_assignments WHERE client_id = ? AND subscriber_id = ?
	`, clientID, subscriberID)
	if err != nil {
		return errors.Wrap(err, "failed to unassign subscriber")
	}
	return nil
}

// IsAssigned reports whether the subscriber is assigned to the client.
func (s *Store) IsAssigned(clientID, subscriberID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM client_assignments WHERE client_id = ? AND subscriber_id = ?)
	`, clientID, subscriberID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check assignment")
	}
	return exists, nil
}

// Subscribers returns the subscriber IDs assigned to a client.
func (s *Store) Subscribers(clientID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT subscriber_id FROM client_assignments WHERE client_id = ?
	`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list client subscribers")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
