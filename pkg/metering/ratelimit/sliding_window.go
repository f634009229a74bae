package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
)

// slidingBuckets is the number of sub-intervals a sliding window is
// divided into. More buckets mean a tighter bound at the cost of memory.
const slidingBuckets = 60

// SlidingWindow is an in-memory sliding-window rate limiter.
//
// It is the strictness upgrade over FixedWindow: the window is divided
// into sub-buckets and admissions are counted over the trailing window
// duration, so the 2x burst artifact of fixed windows does not occur.
// State lives in process memory and is keyed per (subject, action).
type SlidingWindow struct {
	clock   clock.Clock
	mu      sync.Mutex
	windows map[string]*slidingState
}

// slidingState tracks admissions for one (subject, action) key.
type slidingState struct {
	buckets []slidingBucket
}

// slidingBucket counts admissions in one sub-interval.
type slidingBucket struct {
	start time.Time
	count int64
}

// NewSlidingWindow creates a sliding-window limiter.
// A nil clk defaults to the system clock.
func NewSlidingWindow(clk clock.Clock) *SlidingWindow {
	if clk == nil {
		clk = clock.System{}
	}
	return &SlidingWindow{
		clock:   clk,
		windows: make(map[string]*slidingState),
	}
}

// Allow checks and consumes one unit of the (subject, action) window.
func (s *SlidingWindow) Allow(ctx context.Context, subject, action string, limit int64, window time.Duration) (*Decision, error) {
	if limit <= 0 || window <= 0 {
		return &Decision{Allowed: true}, nil
	}

	granularity := window / slidingBuckets
	if granularity < time.Second {
		granularity = time.Second
	}

	now := s.clock.Now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey(subject, action)
	state, exists := s.windows[key]
	if !exists {
		state = &slidingState{}
		s.windows[key] = state
	}

	// Drop buckets that fell out of the trailing window.
	kept := state.buckets[:0]
	var oldest time.Time
	var count int64
	for _, b := range state.buckets {
		if b.start.After(cutoff) {
			if oldest.IsZero() || b.start.Before(oldest) {
				oldest = b.start
			}
			count += b.count
			kept = append(kept, b)
		}
	}
	state.buckets = kept

	decision := &Decision{
		Count:     count,
		Limit:     limit,
		Remaining: limit - count,
		Reset:     now.Add(window),
	}

	if count >= limit {
		decision.Remaining = 0
		// The window frees a slot when the oldest bucket slides out.
		decision.RetryAfter = oldest.Add(window).Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
		return decision, nil
	}

	// Admit into the current sub-bucket.
	bucketStart := now.Truncate(granularity)
	placed := false
	for i := range state.buckets {
		if state.buckets[i].start.Equal(bucketStart) {
			state.buckets[i].count++
			placed = true
			break
		}
	}
	if !placed {
		state.buckets = append(state.buckets, slidingBucket{start: bucketStart, count: 1})
	}

	decision.Allowed = true
	decision.Count = count + 1
	decision.Remaining = limit - decision.Count

	return decision, nil
}

// Prune drops keys with no admissions inside the retention horizon.
// Called periodically by the retention pruner to bound key growth.
func (s *SlidingWindow) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, state := range s.windows {
		live := false
		for _, b := range state.buckets {
			if b.start.After(before) {
				live = true
				break
			}
		}
		if !live {
			delete(s.windows, key)
			deleted++
		}
	}

	return deleted
}
