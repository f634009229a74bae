package metering

import (
	"errors"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/budget"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ledger"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ratelimit"
)

// Reason explains why an admission was denied.
type Reason string

const (
	// ReasonRateLimited means the (subject, action) window is full.
	// Retryable after AdmitDecision.RetryAfter.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonBudgetExceeded means the daily feature quota is spent.
	// Retryable next UTC day, not sooner.
	ReasonBudgetExceeded Reason = "budget_exceeded"

	// ReasonInsufficientFunds means the balance cannot cover the
	// feature's estimated cost. User-actionable: top up.
	ReasonInsufficientFunds Reason = "insufficient_funds"

	// ReasonStoreUnavailable means the shared store could not be
	// reached and the meter failed closed.
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// LimitStrategy selects the rate limiting algorithm for an action.
type LimitStrategy string

const (
	// StrategyFixedWindow is store-backed fixed-window counting (default).
	StrategyFixedWindow LimitStrategy = "fixed_window"

	// StrategySlidingWindow is the in-memory strictness upgrade.
	StrategySlidingWindow LimitStrategy = "sliding_window"
)

// ActionLimit configures the rate limit for one action key.
type ActionLimit struct {
	// Limit is the maximum admitted calls per window.
	Limit int64

	// Window is the window duration.
	Window time.Duration

	// Strategy selects fixed-window (default) or sliding-window counting.
	Strategy LimitStrategy
}

// FeatureQuota configures the daily budget for one feature key.
type FeatureQuota struct {
	// DailyLimit is the per-subject daily quota. Zero means no quota.
	DailyLimit int64

	// Monetary marks features whose calls are paid from the credit
	// ledger. Admit additionally runs an advisory balance check.
	Monetary bool

	// EstimatedCostCents is the advisory per-call cost used by the
	// Admit balance check. The authoritative amount is whatever Charge
	// is later called with.
	EstimatedCostCents int64
}

// Plans holds the limit configuration for all actions and features.
// Plans are replaceable at runtime via Meter.UpdatePlans (hot reload).
type Plans struct {
	// Actions maps action keys to rate limits.
	Actions map[string]ActionLimit

	// Features maps feature keys to daily quotas.
	Features map[string]FeatureQuota
}

// AdmitRequest identifies the call to be admitted.
type AdmitRequest struct {
	// Subject is the account making the call.
	Subject string

	// Action is the rate-limit bucket name (e.g. "chat:completions").
	Action string

	// Feature is the budget bucket name (e.g. "chat").
	Feature string
}

// AdmitDecision contains the admission decision and its context.
type AdmitDecision struct {
	// Allowed indicates if the gated call may proceed.
	Allowed bool

	// Reason explains the denial (empty when allowed).
	Reason Reason

	// RetryAfter suggests how long to wait before retrying
	// (rate-limited denials only).
	RetryAfter time.Duration

	// RateLimit contains the rate limiter decision, when one was made.
	RateLimit *ratelimit.Decision

	// Budget contains the quota status, when one was checked.
	Budget *budget.Status

	// Balance is the subject's balance at check time, for monetary
	// features. Advisory only; Charge remains the authority.
	Balance ledger.Money

	// BalanceChecked reports whether a monetary balance check ran.
	// Distinguishes a checked zero balance from no check at all.
	BalanceChecked bool
}

// ChargeRequest describes the settlement of a completed gated call.
type ChargeRequest struct {
	// Subject is the account to charge.
	Subject string

	// Feature is the budget bucket the quantity counts against.
	Feature string

	// Amount is the monetary cost in cents. Zero for purely
	// usage-based features; no debit is attempted then.
	Amount ledger.Money

	// Quantity is the units consumed, e.g. the token count the
	// provider reported. Zero counts as one call unit.
	Quantity int64

	// Reason is a free-text description for the ledger transaction.
	Reason string

	// IdempotencyKey deduplicates retried usage writes. Optional.
	IdempotencyKey string

	// Metadata carries structured context into the audit records.
	Metadata map[string]string
}

// ChargeReceipt confirms a settled charge.
type ChargeReceipt struct {
	// ReceiptID identifies the ledger transaction (debit or write-off).
	ReceiptID string

	// WriteOff is true when the debit could not be collected and the
	// charge was recorded as a write-off instead. Callers can use this
	// to flag the account; it is not a failure of the user's request.
	WriteOff bool

	// Balance is the subject's balance after settlement.
	Balance ledger.Money
}

// Errors surfaced by the meter.
var (
	// ErrStoreUnavailable is returned by Charge when the ledger store
	// stayed unreachable through all retries. The caller decides
	// whether to retry the charge asynchronously.
	ErrStoreUnavailable = errors.New("metering store unavailable")

	// ErrInvalidRequest is returned when a request is missing its
	// subject or feature.
	ErrInvalidRequest = errors.New("invalid metering request")
)
