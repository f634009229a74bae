package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "meterd",
	Short: "Meterd - usage metering and credit ledger service",
	Long: `Meterd meters AI usage against per-subject limits and balances.

Every gated call goes through two phases: Admit, which checks the rate
limit, the daily budget, and the credit balance before the call is made,
and Charge, which settles the actual cost afterwards and appends a
durable usage record. Charges the balance cannot cover are written off
rather than rejected, since the service was already delivered.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "meterd.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
