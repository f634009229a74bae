// Package storage provides persistence backends for metering state.
//
// # Overview
//
// The storage package defines the Store interface used by the rate
// limiter, budget tracker, and credit ledger, along with two
// implementations:
//
//   - MemoryStore: In-memory storage (default, no persistence)
//   - SQLiteStore: SQLite-based durable storage
//
// # State Categories
//
// Three categories of state are stored, with different lifecycles:
//
//   - Rate windows: one active window per (subject, action) key,
//     logically garbage once the window expires
//   - Daily quotas: one record per (subject, feature, day), reset
//     implicitly by keying on the UTC date
//   - Ledger accounts and transactions: accounts hold the current
//     balance; transactions are a permanent append-only audit trail
//
// Expired windows and stale quota days may be pruned; transactions are
// never deleted by this subsystem.
//
// # Concurrency
//
// Every mutation of a subject's balance goes through ApplyTransaction,
// which is atomic: the balance check, balance update, and transaction
// append commit together or not at all. Two concurrent debits can never
// both succeed when only one could be covered.
package storage
