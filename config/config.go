// Package config provides Vigil's configuration, loaded via Viper from a
// TOML file with environment-variable overrides.
package config

// Config represents the core Vigil configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MonitorConfig configures the scheduling and workflow subsystem
type MonitorConfig struct {
	// Workers is the bounded per-run concurrency for entity processing
	Workers int `mapstructure:"workers"`

	// TickerIntervalSeconds controls how often due schedules are polled
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`

	// CollaboratorTimeoutSeconds bounds each external collaborator call
	// (collection, enrichment, classification, dispatch)
	CollaboratorTimeoutSeconds int `mapstructure:"collaborator_timeout_seconds"`

	// LookbackHours is the default collection window for a run
	LookbackHours int `mapstructure:"lookback_hours"`

	// MaxEventsPerEntity caps event creation per entity per run so a
	// single noisy client cannot starve notification capacity
	MaxEventsPerEntity int `mapstructure:"max_events_per_entity"`
}

// DispatchConfig configures outbound notification channels
type DispatchConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool   `mapstructure:"json"`
	File string `mapstructure:"file"` // empty disables file output
}
