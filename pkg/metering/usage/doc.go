// Package usage appends immutable usage records for metered features.
//
// # Overview
//
// A usage record captures what a single gated call consumed: the
// subject, the feature, the quantity (e.g. tokens), the cost, and
// structured metadata. Records are append-only and feed daily budget
// reconciliation and external reporting; they are never deleted by this
// subsystem.
//
// # Durability
//
// Record is fire-and-forget from the caller's perspective but durable
// before it returns. Writes carry their own short timeout so a slow
// store cannot hold up an HTTP response whose outcome is already
// decided. Semantics are at-least-once; callers may pass an idempotency
// key and stores deduplicate on it.
package usage
