package storage

import (
	"context"
	"errors"
	"time"
)

// Store defines the interface for metering state persistence.
// Implementations must be thread-safe and support concurrent access;
// all mutating operations on a single subject's records must serialize
// relative to each other without blocking other subjects.
type Store interface {
	// BumpWindow atomically increments the fixed-window counter for key,
	// provided the counter is below limit. A window whose start differs
	// from windowStart is expired and replaced with a fresh count of 1.
	// Returns the count after the call and whether the increment happened.
	BumpWindow(ctx context.Context, key string, windowStart time.Time, limit int64) (count int64, allowed bool, err error)

	// PruneWindows removes windows whose start is before the cutoff.
	// Returns the number of windows deleted.
	PruneWindows(ctx context.Context, before time.Time) (int, error)

	// QuotaConsumed returns the consumed quantity for (subject, feature, day).
	// Returns zero if no record exists.
	QuotaConsumed(ctx context.Context, subject, feature, day string) (int64, error)

	// AddQuotaConsumed adds quantity to the consumed counter for
	// (subject, feature, day), creating the record if absent.
	// Returns the consumed total after the addition.
	AddQuotaConsumed(ctx context.Context, subject, feature, day string, quantity int64) (int64, error)

	// PruneQuotas removes quota records for days before the cutoff day key.
	// Returns the number of records deleted.
	PruneQuotas(ctx context.Context, beforeDay string) (int, error)

	// Balance returns the current balance in cents for a subject,
	// creating a zero-balance account if none exists.
	Balance(ctx context.Context, subject string) (int64, error)

	// ApplyTransaction atomically appends a transaction and adjusts the
	// subject's balance by tx.Amount. A transaction that would drive the
	// balance negative is rejected with ErrInsufficientFunds and nothing
	// is applied. Returns the balance after the transaction.
	ApplyTransaction(ctx context.Context, tx *TransactionRecord) (newBalance int64, err error)

	// Transactions returns the most recent transactions for a subject,
	// newest first, up to limit.
	Transactions(ctx context.Context, subject string, limit int) ([]*TransactionRecord, error)

	// TransactionSum returns the sum of transaction amounts for a subject.
	// Used for reconciliation against the account balance.
	TransactionSum(ctx context.Context, subject string) (int64, error)

	// Close releases any resources held by the store.
	// The store should not be used after calling Close.
	Close() error
}

// Transaction kinds. Write-offs carry a zero amount: the balance did not
// move, so the reconciliation invariant balance == sum(amounts) holds.
const (
	KindDebit    = "debit"
	KindCredit   = "credit"
	KindWriteOff = "write_off"
)

// TransactionRecord is the persisted shape of a single ledger transaction.
// Records are append-only and never mutated or deleted.
type TransactionRecord struct {
	// ID uniquely identifies the transaction.
	ID string

	// Subject is the account the transaction belongs to.
	Subject string

	// Kind is one of KindDebit, KindCredit, KindWriteOff.
	Kind string

	// Amount is the signed amount in cents. Negative for debits,
	// positive for credits, zero for write-offs.
	Amount int64

	// Reason is a free-text description of the charge.
	Reason string

	// Metadata is a JSON-encoded map of structured metadata.
	Metadata string

	// CreatedAt is when the transaction was committed.
	CreatedAt time.Time
}

// Errors returned by Store implementations.
var (
	// ErrInsufficientFunds is returned by ApplyTransaction when the
	// transaction would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidSubject is returned when a subject is empty.
	ErrInvalidSubject = errors.New("subject cannot be empty")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store is closed")
)
