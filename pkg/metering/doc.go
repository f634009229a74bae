// Package metering gates paid external calls behind rate limits, daily
// usage budgets, and a pay-per-call credit ledger.
//
// # Overview
//
// The Meter is the only surface a request handler needs:
//
//   - Admit is called before the gated call: rate limit first (cheap,
//     reject fast), then daily budget, then an advisory balance check
//     for monetary features. Any rejection short-circuits.
//   - Charge is called only after the gated call succeeds: it debits the
//     ledger and appends a usage record. A failed or cancelled upstream
//     call must skip Charge entirely; nothing is ever charged for a
//     call that delivered nothing.
//
// # Request Lifecycle
//
//	handler --> Admit --> [allowed] --> external AI call
//	   on success: Charge (debit + usage record)
//	   on failure: skip Charge
//
// Retries of the external call are the caller's concern; each attempt is
// a fresh admission.
//
// # Failure Semantics
//
// Admit fails closed: if the shared store is unreachable the decision is
// a denial with ReasonStoreUnavailable, because an unmetered paid call
// is worse than a rejected request. Charge retries transient store
// errors a bounded number of times; a debit the balance cannot cover is
// recorded as a write-off rather than surfaced as a request failure,
// since the service was already delivered.
package metering
