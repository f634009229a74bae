// Meterd is a usage metering and credit ledger service for AI applications.
//
// It sits in front of metered upstream calls and provides:
//   - Per-subject rate limiting (fixed and sliding window)
//   - Daily usage budgets with UTC midnight reset
//   - A credit ledger with atomic debits and write-off accounting
//   - A durable usage audit trail
//   - Hot-reloadable limit plans
//
// Usage:
//
//	# Start the server with default configuration
//	meterd run
//
//	# Start with a custom configuration file
//	meterd run --config /path/to/meterd.yaml
//
//	# Validate a configuration file without starting
//	meterd validate --config /path/to/meterd.yaml
//
//	# Show the effective limit plans
//	meterd plans --config /path/to/meterd.yaml --format json
//
//	# Show version information
//	meterd version
package main

func main() {
	Execute()
}
