package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
)

// FixedWindow is a store-backed fixed-window rate limiter.
//
// Each (subject, action) pair has at most one active window at a time,
// keyed by the window start floor(now / window). The window counter is
// incremented atomically in the store only while it is below the limit,
// so the number of admitted calls within any single window never exceeds
// the limit under arbitrary interleaving.
type FixedWindow struct {
	store storage.Store
	clock clock.Clock
}

// NewFixedWindow creates a fixed-window limiter counting in the given store.
// A nil clk defaults to the system clock.
func NewFixedWindow(store storage.Store, clk clock.Clock) *FixedWindow {
	if clk == nil {
		clk = clock.System{}
	}
	return &FixedWindow{store: store, clock: clk}
}

// Allow checks and consumes one unit of the (subject, action) window.
//
// If the counting store is unavailable, Allow denies and returns an error
// wrapping ErrStoreUnavailable: this limiter gates paid external calls
// and must fail closed.
func (f *FixedWindow) Allow(ctx context.Context, subject, action string, limit int64, window time.Duration) (*Decision, error) {
	if limit <= 0 || window <= 0 {
		return &Decision{Allowed: true}, nil
	}

	now := f.clock.Now()
	windowStart := now.Truncate(window)
	windowEnd := windowStart.Add(window)

	count, allowed, err := f.store.BumpWindow(ctx, windowKey(subject, action), windowStart, limit)
	if err != nil {
		return &Decision{Allowed: false, Limit: limit},
			fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	decision := &Decision{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: limit - count,
		Reset:     windowEnd,
	}

	if !allowed {
		decision.Remaining = 0
		decision.RetryAfter = windowEnd.Sub(now)
	}

	return decision, nil
}

// windowKey builds the counter key for a (subject, action) pair.
// The unit separator keeps user-supplied values from colliding.
func windowKey(subject, action string) string {
	return subject + "\x1f" + action
}
