// Package budget tracks per-subject daily usage quotas.
//
// # Overview
//
// A quota is one record per (subject, feature, UTC day). Consumption only
// increases within a day and resets implicitly when the day key rolls
// over; no reset job exists or is needed.
//
// # Optimistic Reservation
//
// CheckAndReserve reports remaining allowance before the gated call;
// actual consumption is committed after the call completes, because the
// exact quantity (e.g. token counts) is only known once the upstream
// provider returns. Admission is therefore checked against "at least one
// unit of quota left", not against the exact quantity about to be
// consumed. A single admitted call can push the day's total past the
// limit; every call after that is rejected until rollover.
package budget
