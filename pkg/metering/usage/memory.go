package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// All records are lost when the process exits; intended for tests and
// single-run tooling.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	seen    map[string]struct{}
}

// NewMemoryStore creates a new in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]struct{}),
	}
}

// Append durably writes a usage record, deduplicating on idempotency key.
func (m *MemoryStore) Append(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Subject == "" {
		return ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.IdempotencyKey != "" {
		if _, dup := m.seen[rec.IdempotencyKey]; dup {
			return nil
		}
		m.seen[rec.IdempotencyKey] = struct{}{}
	}

	clone := *rec
	m.records = append(m.records, &clone)
	return nil
}

// Recent returns the most recent records for a subject, newest first.
func (m *MemoryStore) Recent(ctx context.Context, subject string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Subject != subject {
			continue
		}
		out = append(out, m.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

// FeatureTotals aggregates usage for a (subject, feature) pair within [from, to).
func (m *MemoryStore) FeatureTotals(ctx context.Context, subject, feature string, from, to time.Time) (*Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := &Totals{}
	for _, rec := range m.records {
		if rec.Subject != subject || rec.Feature != feature {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		totals.Quantity += rec.Quantity
		totals.CostCents += rec.CostCents
		totals.Records++
	}

	return totals, nil
}

// Close releases resources held by the store.
func (m *MemoryStore) Close() error {
	return nil
}
