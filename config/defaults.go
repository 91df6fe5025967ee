package config

import "github.com/spf13/viper"

// SetDefaults registers default values for all configuration keys
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "vigil.db")

	v.SetDefault("monitor.workers", 4)
	v.SetDefault("monitor.ticker_interval_seconds", 30)
	v.SetDefault("monitor.collaborator_timeout_seconds", 15)
	v.SetDefault("monitor.lookback_hours", 24)
	v.SetDefault("monitor.max_events_per_entity", 25)

	v.SetDefault("dispatch.from_name", "Vigil")
	v.SetDefault("dispatch.from_email", "")
	v.SetDefault("dispatch.sendgrid_api_key", "")

	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
}
