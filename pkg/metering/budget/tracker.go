package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
)

// dayFormat is the UTC day key layout. Keys sort lexically in
// chronological order, which the pruner relies on.
const dayFormat = "2006-01-02"

// Status contains the current quota status for a (subject, feature, day).
type Status struct {
	// Allowed indicates if another call is permitted today.
	Allowed bool

	// Limit is the configured daily limit.
	Limit int64

	// Consumed is the quantity consumed so far today.
	Consumed int64

	// Remaining is the quantity remaining today. Never negative.
	Remaining int64

	// Reset is the next UTC midnight, when the quota resets.
	Reset time.Time
}

// Tracker tracks daily usage quotas in a shared store.
type Tracker struct {
	store storage.Store
	clock clock.Clock
}

// NewTracker creates a quota tracker backed by the given store.
// A nil clk defaults to the system clock.
func NewTracker(store storage.Store, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	return &Tracker{store: store, clock: clk}
}

// CheckAndReserve reports whether a call for the feature is admissible
// today. The reservation is optimistic: nothing is held, and the caller
// commits the actual quantity after the gated call completes.
func (t *Tracker) CheckAndReserve(ctx context.Context, subject, feature string, dailyLimit int64) (*Status, error) {
	if dailyLimit <= 0 {
		return &Status{Allowed: true}, nil
	}

	now := t.clock.Now().UTC()
	consumed, err := t.store.QuotaConsumed(ctx, subject, feature, now.Format(dayFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to load quota: %w", err)
	}

	status := &Status{
		Allowed:  consumed < dailyLimit,
		Limit:    dailyLimit,
		Consumed: consumed,
		Reset:    nextMidnight(now),
	}
	if remaining := dailyLimit - consumed; remaining > 0 {
		status.Remaining = remaining
	}

	return status, nil
}

// Commit records actual consumption against today's quota.
// Called after the gated call completes, with the quantity the upstream
// provider reported. Returns the consumed total after the commit.
func (t *Tracker) Commit(ctx context.Context, subject, feature string, quantity int64) (int64, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("quantity cannot be negative: %d", quantity)
	}
	if quantity == 0 {
		quantity = 1 // every admitted call consumes at least one unit
	}

	day := t.clock.Now().UTC().Format(dayFormat)
	consumed, err := t.store.AddQuotaConsumed(ctx, subject, feature, day, quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to commit quota consumption: %w", err)
	}

	return consumed, nil
}

// Day returns the current UTC day key.
func (t *Tracker) Day() string {
	return t.clock.Now().UTC().Format(dayFormat)
}

// nextMidnight returns the first instant of the next UTC day.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
