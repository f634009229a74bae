package usage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Record is a single immutable usage record.
type Record struct {
	// ID uniquely identifies the record.
	ID string

	// IdempotencyKey deduplicates retried writes. Optional; when set,
	// a second write with the same key is dropped by the store.
	IdempotencyKey string

	// Subject is the account the usage belongs to.
	Subject string

	// Feature is the metered feature (e.g. "chat", "image").
	Feature string

	// Quantity is the units consumed (e.g. token count, image count).
	Quantity int64

	// CostCents is the cost of the call in cents.
	CostCents int64

	// WriteOff marks usage whose charge could not be collected.
	WriteOff bool

	// Metadata carries structured context (provider, model, request id).
	Metadata map[string]string

	// CreatedAt is when the usage occurred.
	CreatedAt time.Time
}

// Totals aggregates usage for a (subject, feature) pair.
type Totals struct {
	// Quantity is the summed quantity.
	Quantity int64

	// CostCents is the summed cost in cents.
	CostCents int64

	// Records is the number of records aggregated.
	Records int64
}

// Store defines persistence for usage records.
// Implementations must be thread-safe.
type Store interface {
	// Append durably writes a usage record. A record whose idempotency
	// key was already seen is dropped without error.
	Append(ctx context.Context, rec *Record) error

	// Recent returns the most recent records for a subject, newest
	// first, up to limit.
	Recent(ctx context.Context, subject string, limit int) ([]*Record, error)

	// FeatureTotals aggregates usage for a (subject, feature) pair
	// within [from, to).
	FeatureTotals(ctx context.Context, subject, feature string, from, to time.Time) (*Totals, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrInvalidRecord is returned when a record is missing required fields.
var ErrInvalidRecord = errors.New("invalid usage record")

// StoreError represents an error from the usage store backend.
type StoreError struct {
	Backend   string // Store backend type ("sqlite", "memory")
	Operation string // Operation that failed ("append", "query")
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("usage store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
