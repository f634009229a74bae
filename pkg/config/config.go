package config

import "time"

// Config is the root configuration structure for the metering service.
// It contains all configuration sections for the HTTP server, storage
// backends, limit plans, retention, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Storage contains configuration for the shared limiter/ledger state
	// store and the usage record store.
	Storage StorageConfig `yaml:"storage"`

	// Plans contains the rate limits and daily quotas per action and
	// feature key.
	Plans PlansConfig `yaml:"plans"`

	// Retention contains configuration for pruning expired limiter state.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are cut off.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// StorageConfig contains configuration for the storage backends.
type StorageConfig struct {
	// Backend selects the state store implementation.
	// Options: "memory" (volatile, single process), "sqlite" (durable).
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// StatePath is the SQLite database file for limiter and ledger
	// state. Only used when Backend is "sqlite".
	// Default: "data/meter.db"
	StatePath string `yaml:"state_path"`

	// UsagePath is the SQLite database file for the usage audit trail.
	// Only used when Backend is "sqlite".
	// Default: "data/usage.db"
	UsagePath string `yaml:"usage_path"`

	// BusyTimeout is how long to wait for SQLite locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// SnapshotInterval is how often the state store checkpoints its WAL.
	// Default: 5m
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// PlansConfig contains the limit plans keyed by action and feature.
type PlansConfig struct {
	// Watch enables hot reloading of plans when the config file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Actions maps action keys to their rate limits.
	Actions map[string]ActionLimitConfig `yaml:"actions"`

	// Features maps feature keys to their daily quotas.
	Features map[string]FeatureQuotaConfig `yaml:"features"`
}

// ActionLimitConfig configures the rate limit for one action key.
type ActionLimitConfig struct {
	// Limit is the maximum admitted calls per window. 0 disables the limit.
	Limit int64 `yaml:"limit"`

	// Window is the window duration.
	// Default: 1m
	Window time.Duration `yaml:"window"`

	// Strategy selects the counting algorithm.
	// Options: "fixed_window" (store-backed, default), "sliding_window"
	// (in-memory, no boundary burst).
	Strategy string `yaml:"strategy"`
}

// FeatureQuotaConfig configures the daily budget for one feature key.
type FeatureQuotaConfig struct {
	// DailyLimit is the per-subject daily quota. 0 means no quota.
	DailyLimit int64 `yaml:"daily_limit"`

	// Monetary marks features paid from the credit ledger.
	Monetary bool `yaml:"monetary"`

	// EstimatedCostCents is the advisory per-call cost in cents used by
	// the pre-flight balance check.
	EstimatedCostCents int64 `yaml:"estimated_cost_cents"`
}

// RetentionConfig contains configuration for limiter state pruning.
type RetentionConfig struct {
	// WindowRetention is how long expired rate windows are kept.
	// Default: 24h
	WindowRetention time.Duration `yaml:"window_retention"`

	// QuotaRetentionDays is the number of days to retain daily quota
	// counters. 0 keeps them forever.
	// Default: 90
	QuotaRetentionDays int `yaml:"quota_retention_days"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Empty disables scheduled pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
