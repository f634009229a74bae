package config

import "time"

// DefaultConfig returns a configuration with all default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any zero-valued fields.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = "data/meter.db"
	}
	if cfg.Storage.UsagePath == "" {
		cfg.Storage.UsagePath = "data/usage.db"
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}
	if cfg.Storage.SnapshotInterval == 0 {
		cfg.Storage.SnapshotInterval = 5 * time.Minute
	}

	// Plan defaults
	for key, action := range cfg.Plans.Actions {
		if action.Window == 0 {
			action.Window = time.Minute
		}
		if action.Strategy == "" {
			action.Strategy = "fixed_window"
		}
		cfg.Plans.Actions[key] = action
	}

	// Retention defaults
	if cfg.Retention.WindowRetention == 0 {
		cfg.Retention.WindowRetention = 24 * time.Hour
	}
	if cfg.Retention.QuotaRetentionDays == 0 {
		cfg.Retention.QuotaRetentionDays = 90
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = "0 3 * * *"
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
}
