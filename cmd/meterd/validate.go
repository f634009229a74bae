package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/cli"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.

Checks the listen address, storage backend, limit plans, retention
schedule, and telemetry settings. Exits non-zero if any value is
invalid.

Examples:
  # Validate the default config file
  meterd validate

  # Validate a specific file
  meterd validate --config /etc/meterd/meterd.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  storage backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  actions: %d, features: %d\n", len(cfg.Plans.Actions), len(cfg.Plans.Features))
	if cfg.Retention.PruneSchedule != "" {
		fmt.Printf("  prune schedule: %s\n", cfg.Retention.PruneSchedule)
	}
	return nil
}
