package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
)

// Ledger manages per-subject credit balances backed by a store.
type Ledger struct {
	store  storage.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a ledger backed by the given store.
// A nil clk defaults to the system clock.
func New(store storage.Store, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	return &Ledger{
		store:  store,
		clock:  clk,
		logger: slog.Default().With("component", "metering.ledger"),
	}
}

// Balance returns the current balance for a subject, creating a
// zero-balance account if none exists.
func (l *Ledger) Balance(ctx context.Context, subject string) (Money, error) {
	balance, err := l.store.Balance(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return Money(balance), nil
}

// HasAtLeast reports whether the subject's balance covers amount.
//
// This is an advisory pre-flight check, not a reservation: no hold is
// placed, and a concurrent request may spend the balance before a later
// Debit. Callers must treat Debit as the authority.
func (l *Ledger) HasAtLeast(ctx context.Context, subject string, amount Money) (bool, error) {
	balance, err := l.Balance(ctx, subject)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Debit atomically charges amount against the subject's balance and
// appends a debit transaction. A debit the balance cannot cover is
// rejected with *InsufficientFundsError and nothing is applied.
func (l *Ledger) Debit(ctx context.Context, subject string, amount Money, reason string, metadata map[string]string) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	rec := l.newRecord(subject, storage.KindDebit, -amount.Cents(), reason, metadata)
	balance, err := l.store.ApplyTransaction(ctx, rec)
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return nil, &InsufficientFundsError{
			Subject:   subject,
			Requested: amount,
			Balance:   Money(balance),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply debit: %w", err)
	}

	l.logger.Debug("debit committed",
		"subject", subject,
		"amount", amount.String(),
		"balance", Money(balance).String(),
		"transaction_id", rec.ID,
	)

	return l.receipt(rec, balance), nil
}

// Credit unconditionally tops up the subject's balance and appends a
// credit transaction.
func (l *Ledger) Credit(ctx context.Context, subject string, amount Money, reason string, metadata map[string]string) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	rec := l.newRecord(subject, storage.KindCredit, amount.Cents(), reason, metadata)
	balance, err := l.store.ApplyTransaction(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to apply credit: %w", err)
	}

	l.logger.Debug("credit committed",
		"subject", subject,
		"amount", amount.String(),
		"balance", Money(balance).String(),
		"transaction_id", rec.ID,
	)

	return l.receipt(rec, balance), nil
}

// WriteOff records a charge that could not be collected. The balance
// does not move; the transaction carries a zero amount with the
// uncollected amount in its metadata, so the audit trail stays complete
// and the reconciliation invariant holds.
func (l *Ledger) WriteOff(ctx context.Context, subject string, uncollected Money, reason string, metadata map[string]string) (*Receipt, error) {
	if uncollected <= 0 {
		return nil, ErrInvalidAmount
	}

	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["uncollected_cents"] = fmt.Sprintf("%d", uncollected.Cents())

	rec := l.newRecord(subject, storage.KindWriteOff, 0, reason, md)
	balance, err := l.store.ApplyTransaction(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record write-off: %w", err)
	}

	l.logger.Warn("charge written off",
		"subject", subject,
		"uncollected", uncollected.String(),
		"balance", Money(balance).String(),
		"transaction_id", rec.ID,
	)

	return l.receipt(rec, balance), nil
}

// Transactions returns the most recent transactions for a subject,
// newest first, up to limit.
func (l *Ledger) Transactions(ctx context.Context, subject string, limit int) ([]*Transaction, error) {
	records, err := l.store.Transactions(ctx, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	transactions := make([]*Transaction, 0, len(records))
	for _, rec := range records {
		tx := &Transaction{
			ID:        rec.ID,
			Subject:   rec.Subject,
			Kind:      TransactionKind(rec.Kind),
			Amount:    Money(rec.Amount),
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &tx.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
			}
		}
		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// Reconcile verifies that the subject's balance equals the sum of its
// transaction amounts. Returns the balance, the sum, and whether they match.
func (l *Ledger) Reconcile(ctx context.Context, subject string) (balance, sum Money, ok bool, err error) {
	b, err := l.store.Balance(ctx, subject)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read balance: %w", err)
	}

	s, err := l.store.TransactionSum(ctx, subject)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to sum transactions: %w", err)
	}

	if b != s {
		l.logger.Error("ledger reconciliation mismatch",
			"subject", subject,
			"balance", Money(b).String(),
			"transaction_sum", Money(s).String(),
		)
	}

	return Money(b), Money(s), b == s, nil
}

// newRecord builds a storage transaction record with a fresh ID.
func (l *Ledger) newRecord(subject, kind string, amount int64, reason string, metadata map[string]string) *storage.TransactionRecord {
	rec := &storage.TransactionRecord{
		ID:        uuid.New().String(),
		Subject:   subject,
		Kind:      kind,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: l.clock.Now(),
	}
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			rec.Metadata = string(data)
		}
	}
	return rec
}

// receipt builds a receipt from a committed record.
func (l *Ledger) receipt(rec *storage.TransactionRecord, balance int64) *Receipt {
	return &Receipt{
		TransactionID: rec.ID,
		Subject:       rec.Subject,
		Amount:        Money(rec.Amount),
		Balance:       Money(balance),
		CreatedAt:     rec.CreatedAt,
	}
}
