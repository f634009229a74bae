// Package ledger maintains per-subject credit balances with an
// append-only transaction trail.
//
// # Overview
//
// Each subject has one account whose balance is held in whole cents.
// Accounts are created lazily with a zero balance on first access. Every
// balance movement appends an immutable transaction; the sum of a
// subject's transaction amounts always equals the account balance.
//
// # Concurrency
//
// Debit is the single place where correctness under concurrency is
// non-negotiable. The balance check and update happen inside one atomic
// store operation (a per-account lock in memory, a conditional UPDATE in
// SQLite), never as a read followed by an unguarded write. Two concurrent
// debits can never both succeed when only one could be covered, and a
// committed balance is never negative.
//
// # Advisory Pre-Checks and Write-Offs
//
// HasAtLeast is a fast advisory check and places no hold: between it and
// a later Debit the balance may be spent by a concurrent request. The
// Debit remains authoritative and can fail with insufficient funds even
// after the gated call succeeded. That outcome is recorded as a zero-
// amount write-off transaction carrying the uncollected amount in its
// metadata, keeping the audit trail complete without breaking the
// balance reconciliation invariant.
package ledger
