package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/cli"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/config"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/retention"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/usage"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/server"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the metering server",
	Long: `Start the metering server with the specified configuration.

The server listens on the configured address and serves the admission,
charging, ledger, and usage endpoints. When plan watching is enabled,
limit changes in the config file take effect without a restart.

Examples:
  # Start with default config
  meterd run

  # Start with custom config
  meterd run --config /etc/meterd/meterd.yaml

  # Override listen address
  meterd run --listen 0.0.0.0:8080

  # Validate config without starting the server
  meterd run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Meterd v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Build the shared state store (limiter windows, quotas, ledger).
	var store storage.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err = storage.NewSQLiteStoreWithConfig(storage.SQLiteStoreConfig{
			DBPath:           cfg.Storage.StatePath,
			BusyTimeout:      cfg.Storage.BusyTimeout,
			SnapshotInterval: cfg.Storage.SnapshotInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
	case "memory":
		store = storage.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}

	// Build the usage audit store.
	var usageStore usage.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		usageStore, err = usage.NewSQLiteStore(&usage.SQLiteConfig{
			Path:        cfg.Storage.UsagePath,
			WALMode:     true,
			BusyTimeout: cfg.Storage.BusyTimeout,
		})
		if err != nil {
			store.Close()
			return fmt.Errorf("failed to open usage store: %w", err)
		}
	default:
		usageStore = usage.NewMemoryStore()
	}

	var metrics *metering.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = metering.NewMetrics()
	}

	meter := metering.NewMeter(store, usageStore, &metering.Config{
		Plans:   cfg.Plans.ToPlans(),
		Metrics: metrics,
	})
	defer meter.Close()

	fmt.Printf("✓ Meter initialized (%d actions, %d features, backend: %s)\n",
		len(cfg.Plans.Actions), len(cfg.Plans.Features), cfg.Storage.Backend)

	// Root context, cancelled on SIGINT/SIGTERM. Everything started
	// below shuts down when it fires.
	ctx := cli.SetupSignalHandler()

	// Start retention pruning if a schedule is configured.
	if cfg.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(store, meter.SlidingWindows(), &retention.Config{
			WindowRetention:    cfg.Retention.WindowRetention,
			QuotaRetentionDays: cfg.Retention.QuotaRetentionDays,
			PruneSchedule:      cfg.Retention.PruneSchedule,
		}, nil)
		if err := pruner.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				slog.Debug("retention scheduler started", "next_pruning", next)
			}
			fmt.Println("✓ Retention scheduler started")
		}
	}

	// Watch the config file for plan changes.
	if cfg.Plans.Watch {
		watcher, err := config.NewFileWatcher(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx, func() error {
				reloaded, err := config.LoadConfigWithEnvOverrides(cfgFile)
				if err != nil {
					return err
				}
				meter.UpdatePlans(reloaded.Plans.ToPlans())
				return nil
			}); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Println("✓ Plan hot-reload enabled")
	}

	srv := server.NewServer(&cfg.Server, &cfg.Telemetry.Metrics, meter)

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until the signal context is cancelled or the
	// listener fails, then drains in-flight requests.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
