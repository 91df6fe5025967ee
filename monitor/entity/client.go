// Package entity holds the tracked clients the monitoring pipeline runs
// against, and their subscriber assignments.
package entity

import "time"

// Client is one tracked entity in the monitoring roster.
type Client struct {
	ID        string
	TenantID  string
	Name      string
	Domain    string
	Industry  string
	Keywords  []string // additional search terms beyond the name
	CreatedAt time.Time
	UpdatedAt time.Time
}
