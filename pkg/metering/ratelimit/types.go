package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates if the call is permitted.
	Allowed bool

	// Count is the number of admitted calls in the current window,
	// including this one if it was admitted.
	Count int64

	// Limit is the configured limit for the window.
	Limit int64

	// Remaining is how many calls remain in the current window.
	Remaining int64

	// Reset is when the current window ends.
	Reset time.Time

	// RetryAfter suggests how long to wait before retrying (if denied).
	RetryAfter time.Duration
}

// Limiter answers whether a call is allowed right now for a
// (subject, action) pair under the given limit and window.
type Limiter interface {
	Allow(ctx context.Context, subject, action string, limit int64, window time.Duration) (*Decision, error)
}

// ErrStoreUnavailable is returned when the counting store cannot be
// reached. The accompanying Decision always denies: an unmetered call
// must never be admitted.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")
