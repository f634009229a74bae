package config

import (
	"fmt"
	"net"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns the first error found.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := validatePlans(&cfg.Plans); err != nil {
		return err
	}
	if err := validateRetention(&cfg.Retention); err != nil {
		return err
	}
	return validateTelemetry(&cfg.Telemetry)
}

func validateServer(cfg *ServerConfig) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("server.listen_address %q is not a valid host:port: %w",
			cfg.ListenAddress, err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %v", cfg.ShutdownTimeout)
	}
	return nil
}

func validateStorage(cfg *StorageConfig) error {
	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be \"memory\" or \"sqlite\", got %q", cfg.Backend)
	}
	if cfg.Backend == "sqlite" {
		if cfg.StatePath == "" {
			return fmt.Errorf("storage.state_path is required for the sqlite backend")
		}
		if cfg.UsagePath == "" {
			return fmt.Errorf("storage.usage_path is required for the sqlite backend")
		}
		if cfg.StatePath == cfg.UsagePath {
			return fmt.Errorf("storage.state_path and storage.usage_path must differ")
		}
	}
	return nil
}

func validatePlans(cfg *PlansConfig) error {
	for key, action := range cfg.Actions {
		if action.Limit < 0 {
			return fmt.Errorf("plans.actions[%q].limit cannot be negative, got %d", key, action.Limit)
		}
		if action.Window < 0 {
			return fmt.Errorf("plans.actions[%q].window cannot be negative, got %v", key, action.Window)
		}
		switch action.Strategy {
		case "", "fixed_window", "sliding_window":
		default:
			return fmt.Errorf("plans.actions[%q].strategy must be \"fixed_window\" or \"sliding_window\", got %q",
				key, action.Strategy)
		}
	}

	for key, feature := range cfg.Features {
		if feature.DailyLimit < 0 {
			return fmt.Errorf("plans.features[%q].daily_limit cannot be negative, got %d", key, feature.DailyLimit)
		}
		if feature.EstimatedCostCents < 0 {
			return fmt.Errorf("plans.features[%q].estimated_cost_cents cannot be negative, got %d",
				key, feature.EstimatedCostCents)
		}
	}

	return nil
}

func validateRetention(cfg *RetentionConfig) error {
	if cfg.WindowRetention <= 0 {
		return fmt.Errorf("retention.window_retention must be positive, got %v", cfg.WindowRetention)
	}
	if cfg.QuotaRetentionDays < 0 {
		return fmt.Errorf("retention.quota_retention_days cannot be negative, got %d", cfg.QuotaRetentionDays)
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			return fmt.Errorf("retention.prune_schedule %q is not a valid cron expression: %w",
				cfg.PruneSchedule, err)
		}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error; got %q",
			cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be \"json\" or \"text\", got %q",
			cfg.Logging.Format)
	}
	return nil
}
