// Package ratelimit provides per-subject admission rate limiting.
//
// # Overview
//
// The package implements fixed-window counting keyed by (subject, action):
// time is bucketed into fixed-size intervals and calls are counted per
// interval. A sliding-window limiter is available as a strictness upgrade
// with the same interface.
//
// # Fixed Window Artifact
//
// A burst straddling two windows can momentarily admit up to 2x the limit
// in the worst case: a subject can use its full allowance at the end of
// one window and again at the start of the next. This is acceptable for
// abuse prevention; use the sliding-window limiter where the bound must
// hold over any interval.
//
// # Failure Semantics
//
// The fixed-window limiter counts in a shared store. If the store is
// unavailable the limiter fails closed (denies) so that a paid external
// call is never made unmetered.
package ratelimit
