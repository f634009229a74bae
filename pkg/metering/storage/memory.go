package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// This is the default store and provides fast access with no persistence.
// All data is lost when the process exits.
//
// Ledger accounts carry their own mutex so that same-subject operations
// serialize while different subjects proceed in parallel. The outer maps
// are guarded by a single RWMutex held only for lookup and insertion.
type MemoryStore struct {
	// windows maps counter key to its single active fixed window.
	windows map[string]*windowState

	// quotas maps composite key (subject:feature:day) to consumed quantity.
	quotas map[string]int64

	// accounts maps subject to its ledger account.
	accounts map[string]*memAccount

	mu     sync.RWMutex
	closed bool
}

// windowState is the single active fixed window for a counter key.
type windowState struct {
	start time.Time
	count int64
}

// memAccount is an in-memory ledger account with its transaction trail.
type memAccount struct {
	mu      sync.Mutex
	balance int64
	trail   []*TransactionRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:  make(map[string]*windowState),
		quotas:   make(map[string]int64),
		accounts: make(map[string]*memAccount),
	}
}

// BumpWindow atomically increments the fixed-window counter for key.
func (m *MemoryStore) BumpWindow(ctx context.Context, key string, windowStart time.Time, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, false, ErrClosed
	}

	w, exists := m.windows[key]
	if !exists || !w.start.Equal(windowStart) {
		// Expired windows are replaced, not accumulated.
		m.windows[key] = &windowState{start: windowStart, count: 1}
		return 1, true, nil
	}

	if w.count < limit {
		w.count++
		return w.count, true, nil
	}

	return w.count, false, nil
}

// PruneWindows removes windows whose start is before the cutoff.
func (m *MemoryStore) PruneWindows(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	deleted := 0
	for key, w := range m.windows {
		if w.start.Before(before) {
			delete(m.windows, key)
			deleted++
		}
	}

	return deleted, nil
}

// QuotaConsumed returns the consumed quantity for (subject, feature, day).
func (m *MemoryStore) QuotaConsumed(ctx context.Context, subject, feature, day string) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	return m.quotas[quotaKey(subject, feature, day)], nil
}

// AddQuotaConsumed adds quantity to the consumed counter for (subject, feature, day).
func (m *MemoryStore) AddQuotaConsumed(ctx context.Context, subject, feature, day string, quantity int64) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	key := quotaKey(subject, feature, day)
	m.quotas[key] += quantity
	return m.quotas[key], nil
}

// PruneQuotas removes quota records for days before the cutoff day key.
// Day keys sort lexically in chronological order (YYYY-MM-DD).
func (m *MemoryStore) PruneQuotas(ctx context.Context, beforeDay string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	deleted := 0
	for key := range m.quotas {
		if quotaDay(key) < beforeDay {
			delete(m.quotas, key)
			deleted++
		}
	}

	return deleted, nil
}

// Balance returns the current balance for a subject, creating a
// zero-balance account if none exists.
func (m *MemoryStore) Balance(ctx context.Context, subject string) (int64, error) {
	acct, err := m.account(subject)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

// ApplyTransaction atomically appends a transaction and adjusts the balance.
func (m *MemoryStore) ApplyTransaction(ctx context.Context, tx *TransactionRecord) (int64, error) {
	if tx == nil {
		return 0, ErrInvalidSubject
	}

	acct, err := m.account(tx.Subject)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.balance+tx.Amount < 0 {
		return acct.balance, ErrInsufficientFunds
	}

	acct.balance += tx.Amount
	rec := *tx
	acct.trail = append(acct.trail, &rec)

	return acct.balance, nil
}

// Transactions returns the most recent transactions for a subject,
// newest first. The trail is append-only in commit order, so newest
// first is simply the reverse.
func (m *MemoryStore) Transactions(ctx context.Context, subject string, limit int) ([]*TransactionRecord, error) {
	acct, err := m.account(subject)
	if err != nil {
		return nil, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	n := len(acct.trail)
	if limit > 0 && n > limit {
		n = limit
	}

	records := make([]*TransactionRecord, 0, n)
	for i := len(acct.trail) - 1; i >= 0 && len(records) < n; i-- {
		records = append(records, acct.trail[i])
	}

	return records, nil
}

// TransactionSum returns the sum of transaction amounts for a subject.
func (m *MemoryStore) TransactionSum(ctx context.Context, subject string) (int64, error) {
	acct, err := m.account(subject)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	var sum int64
	for _, rec := range acct.trail {
		sum += rec.Amount
	}

	return sum, nil
}

// Close releases resources held by the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// account returns the ledger account for a subject, creating it lazily.
func (m *MemoryStore) account(subject string) (*memAccount, error) {
	if subject == "" {
		return nil, ErrInvalidSubject
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	acct, exists := m.accounts[subject]
	m.mu.RUnlock()

	if exists {
		return acct, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	// Re-check after upgrading the lock.
	if acct, exists = m.accounts[subject]; exists {
		return acct, nil
	}

	acct = &memAccount{}
	m.accounts[subject] = acct
	return acct, nil
}

// quotaKey creates a composite key from subject, feature, and day.
// The unit separator keeps user-supplied values from colliding.
func quotaKey(subject, feature, day string) string {
	return subject + "\x1f" + feature + "\x1f" + day
}

// quotaDay extracts the day component from a composite quota key.
func quotaDay(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '\x1f' {
			return key[i+1:]
		}
	}
	return key
}
