package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meterd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("Expected default listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected default backend sqlite, got %q", cfg.Storage.Backend)
	}
	if cfg.Retention.QuotaRetentionDays != 90 {
		t.Errorf("Expected default quota retention 90, got %d", cfg.Retention.QuotaRetentionDays)
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("Expected default logging info/json, got %s/%s",
			cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9090"
  shutdown_timeout: 10s
storage:
  backend: memory
plans:
  watch: true
  actions:
    chat:completions:
      limit: 60
      window: 1m
      strategy: sliding_window
    embed:
      limit: 100
  features:
    chat:
      daily_limit: 200000
      monetary: true
      estimated_cost_cents: 5
retention:
  quota_retention_days: 30
  prune_schedule: "0 4 * * *"
telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("Expected configured listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}

	action := cfg.Plans.Actions["chat:completions"]
	if action.Limit != 60 || action.Window != time.Minute || action.Strategy != "sliding_window" {
		t.Errorf("Unexpected action config: %+v", action)
	}

	// Unspecified action fields pick up defaults.
	embed := cfg.Plans.Actions["embed"]
	if embed.Window != time.Minute || embed.Strategy != "fixed_window" {
		t.Errorf("Expected defaulted action config, got %+v", embed)
	}

	feature := cfg.Plans.Features["chat"]
	if feature.DailyLimit != 200000 || !feature.Monetary || feature.EstimatedCostCents != 5 {
		t.Errorf("Unexpected feature config: %+v", feature)
	}

	if cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected explicit metrics disable to survive defaults")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad listen address",
			content: "server:\n  listen_address: \"not-an-address\"\n",
		},
		{
			name:    "bad backend",
			content: "storage:\n  backend: redis\n",
		},
		{
			name:    "negative action limit",
			content: "plans:\n  actions:\n    chat:\n      limit: -1\n",
		},
		{
			name:    "bad strategy",
			content: "plans:\n  actions:\n    chat:\n      limit: 5\n      strategy: leaky_bucket\n",
		},
		{
			name:    "bad cron schedule",
			content: "retention:\n  prune_schedule: \"not cron\"\n",
		},
		{
			name:    "bad log level",
			content: "telemetry:\n  logging:\n    level: verbose\n",
		},
		{
			name:    "same sqlite paths",
			content: "storage:\n  backend: sqlite\n  state_path: data/one.db\n  usage_path: data/one.db\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n")

	t.Setenv("METERD_SERVER_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("METERD_STORAGE_BACKEND", "memory")
	t.Setenv("METERD_TELEMETRY_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("Expected env override to win, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected backend override, got %q", cfg.Storage.Backend)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected logging level override, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestPlansConfig_ToPlans(t *testing.T) {
	cfg := &PlansConfig{
		Actions: map[string]ActionLimitConfig{
			"chat:completions": {Limit: 60, Window: time.Minute, Strategy: "sliding_window"},
			"embed":            {Limit: 100, Window: time.Hour, Strategy: "fixed_window"},
		},
		Features: map[string]FeatureQuotaConfig{
			"chat": {DailyLimit: 1000, Monetary: true, EstimatedCostCents: 5},
		},
	}

	plans := cfg.ToPlans()

	chat := plans.Actions["chat:completions"]
	if chat.Limit != 60 || chat.Window != time.Minute {
		t.Errorf("Unexpected action limit: %+v", chat)
	}
	if chat.Strategy != "sliding_window" {
		t.Errorf("Expected sliding_window strategy, got %q", chat.Strategy)
	}
	if plans.Actions["embed"].Strategy != "fixed_window" {
		t.Errorf("Expected fixed_window strategy, got %q", plans.Actions["embed"].Strategy)
	}

	feature := plans.Features["chat"]
	if feature.DailyLimit != 1000 || !feature.Monetary || feature.EstimatedCostCents != 5 {
		t.Errorf("Unexpected feature quota: %+v", feature)
	}
}
