package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Money is a monetary amount in whole cents of the account currency.
// Integer cents keep the reconciliation invariant exact; floating point
// drift has no place in a ledger.
type Money int64

// Cents returns the amount as an int64 cent count.
func (m Money) Cents() int64 {
	return int64(m)
}

// String formats the amount as a decimal currency string, e.g. "4.95".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// TransactionKind classifies a ledger transaction.
type TransactionKind string

const (
	// KindDebit is a charge against the balance. Amount is negative.
	KindDebit TransactionKind = "debit"

	// KindCredit is a top-up. Amount is positive.
	KindCredit TransactionKind = "credit"

	// KindWriteOff records a charge that could not be collected: service
	// was delivered, payment was not. Amount is zero; the uncollected
	// amount is carried in metadata under "uncollected_cents".
	KindWriteOff TransactionKind = "write_off"
)

// Transaction is a single immutable line in a subject's ledger.
type Transaction struct {
	// ID uniquely identifies the transaction.
	ID string

	// Subject is the account the transaction belongs to.
	Subject string

	// Kind classifies the transaction.
	Kind TransactionKind

	// Amount is the signed amount in cents.
	Amount Money

	// Reason is a free-text description of the charge.
	Reason string

	// Metadata carries structured context (feature, provider, request id).
	Metadata map[string]string

	// CreatedAt is when the transaction was committed.
	CreatedAt time.Time
}

// Receipt confirms a committed ledger operation.
type Receipt struct {
	// TransactionID identifies the appended transaction.
	TransactionID string

	// Subject is the account that was charged or credited.
	Subject string

	// Amount is the signed amount applied to the balance.
	Amount Money

	// Balance is the account balance after the operation.
	Balance Money

	// CreatedAt is when the operation committed.
	CreatedAt time.Time
}

// ErrInvalidAmount is returned when a debit or credit amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// InsufficientFundsError is returned by Debit when the balance cannot
// cover the requested amount. The debit is rejected atomically, never
// partially applied.
type InsufficientFundsError struct {
	// Subject is the account that could not cover the debit.
	Subject string

	// Requested is the debit amount that was rejected.
	Requested Money

	// Balance is the committed balance at the time of rejection.
	Balance Money
}

// Error implements the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: requested=%s, balance=%s",
		e.Subject, e.Requested, e.Balance)
}
