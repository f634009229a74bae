package metering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/budget"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ledger"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ratelimit"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/usage"
)

// debitAttempts bounds Charge retries against a flaky ledger store.
const debitAttempts = 3

// debitRetryDelay is the pause between debit attempts.
const debitRetryDelay = 50 * time.Millisecond

// Config contains configuration for the meter.
type Config struct {
	// Plans is the initial limit configuration.
	Plans *Plans

	// Clock overrides the time source. Nil means the system clock.
	Clock clock.Clock

	// Metrics receives operational metrics. Nil disables metric
	// recording, which tests rely on to avoid duplicate registration.
	Metrics *Metrics
}

// Meter is the facade composing the rate limiter, budget tracker,
// credit ledger, and usage recorder behind Admit and Charge.
type Meter struct {
	store    storage.Store
	fixed    *ratelimit.FixedWindow
	sliding  *ratelimit.SlidingWindow
	budget   *budget.Tracker
	ledger   *ledger.Ledger
	recorder *usage.Recorder
	clock    clock.Clock
	metrics  *Metrics
	logger   *slog.Logger

	mu    sync.RWMutex
	plans *Plans
}

// NewMeter creates a meter over the given state store and usage store.
func NewMeter(store storage.Store, usageStore usage.Store, config *Config) *Meter {
	if config == nil {
		config = &Config{}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.System{}
	}
	plans := config.Plans
	if plans == nil {
		plans = &Plans{}
	}

	return &Meter{
		store:    store,
		fixed:    ratelimit.NewFixedWindow(store, clk),
		sliding:  ratelimit.NewSlidingWindow(clk),
		budget:   budget.NewTracker(store, clk),
		ledger:   ledger.New(store, clk),
		recorder: usage.NewRecorder(usageStore, nil, clk),
		clock:    clk,
		metrics:  config.Metrics,
		logger:   slog.Default().With("component", "metering"),
		plans:    plans,
	}
}

// UpdatePlans atomically replaces the limit configuration.
// In-flight admissions finish under the plans they started with.
func (m *Meter) UpdatePlans(plans *Plans) {
	if plans == nil {
		plans = &Plans{}
	}
	m.mu.Lock()
	m.plans = plans
	m.mu.Unlock()

	m.logger.Info("plans updated",
		"actions", len(plans.Actions),
		"features", len(plans.Features),
	)
}

// Plans returns the current limit configuration.
func (m *Meter) Plans() *Plans {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plans
}

// Admit decides whether a gated call may proceed.
//
// Checks run cheapest first and short-circuit on the first denial:
// rate limit, then daily budget, then an advisory balance check for
// monetary features. A store failure during any check denies with
// ReasonStoreUnavailable.
func (m *Meter) Admit(ctx context.Context, req *AdmitRequest) (*AdmitDecision, error) {
	if req == nil || req.Subject == "" {
		return nil, ErrInvalidRequest
	}

	start := time.Now()
	decision, err := m.admit(ctx, req)
	if m.metrics != nil {
		m.metrics.RecordOpDuration("admit", time.Since(start).Seconds())
		m.metrics.RecordAdmit(req.Feature, decision.Reason, decision.Allowed)
	}

	if !decision.Allowed {
		m.logger.Info("admission denied",
			"subject", req.Subject,
			"action", req.Action,
			"feature", req.Feature,
			"reason", decision.Reason,
		)
	}

	return decision, err
}

func (m *Meter) admit(ctx context.Context, req *AdmitRequest) (*AdmitDecision, error) {
	plans := m.Plans()

	if limit, ok := plans.Actions[req.Action]; ok {
		rl, err := m.limiter(limit.Strategy).Allow(ctx, req.Subject, req.Action, limit.Limit, limit.Window)
		if err != nil {
			m.logger.Error("rate limit check failed, failing closed",
				"subject", req.Subject,
				"action", req.Action,
				"error", err,
			)
			return &AdmitDecision{
				Reason:    ReasonStoreUnavailable,
				RateLimit: rl,
			}, nil
		}
		if !rl.Allowed {
			return &AdmitDecision{
				Reason:     ReasonRateLimited,
				RetryAfter: rl.RetryAfter,
				RateLimit:  rl,
			}, nil
		}

		quota, ok := plans.Features[req.Feature]
		if !ok {
			return &AdmitDecision{Allowed: true, RateLimit: rl}, nil
		}
		return m.admitFeature(ctx, req, quota, rl)
	}

	quota, ok := plans.Features[req.Feature]
	if !ok {
		// No limits configured for this call.
		return &AdmitDecision{Allowed: true}, nil
	}
	return m.admitFeature(ctx, req, quota, nil)
}

// admitFeature runs the budget and balance checks after the rate limiter
// has admitted the call.
func (m *Meter) admitFeature(ctx context.Context, req *AdmitRequest, quota FeatureQuota, rl *ratelimit.Decision) (*AdmitDecision, error) {
	status, err := m.budget.CheckAndReserve(ctx, req.Subject, req.Feature, quota.DailyLimit)
	if err != nil {
		m.logger.Error("budget check failed, failing closed",
			"subject", req.Subject,
			"feature", req.Feature,
			"error", err,
		)
		return &AdmitDecision{
			Reason:    ReasonStoreUnavailable,
			RateLimit: rl,
		}, nil
	}
	if !status.Allowed {
		return &AdmitDecision{
			Reason:    ReasonBudgetExceeded,
			RateLimit: rl,
			Budget:    status,
		}, nil
	}

	decision := &AdmitDecision{
		Allowed:   true,
		RateLimit: rl,
		Budget:    status,
	}

	if quota.Monetary {
		balance, err := m.ledger.Balance(ctx, req.Subject)
		if err != nil {
			m.logger.Error("balance check failed, failing closed",
				"subject", req.Subject,
				"feature", req.Feature,
				"error", err,
			)
			return &AdmitDecision{
				Reason:    ReasonStoreUnavailable,
				RateLimit: rl,
				Budget:    status,
			}, nil
		}
		decision.Balance = balance
		decision.BalanceChecked = true
		if balance < ledger.Money(quota.EstimatedCostCents) {
			decision.Allowed = false
			decision.Reason = ReasonInsufficientFunds
			return decision, nil
		}
	}

	return decision, nil
}

// limiter selects the rate limiting implementation for a strategy.
func (m *Meter) limiter(strategy LimitStrategy) ratelimit.Limiter {
	if strategy == StrategySlidingWindow {
		return m.sliding
	}
	return m.fixed
}

// Charge settles a completed gated call: debit the ledger, commit the
// budget consumption, and append a usage record.
//
// The debit retries transient store errors up to debitAttempts times.
// A debit the balance cannot cover becomes a write-off rather than an
// error: the service was already delivered, so the receipt reports
// WriteOff=true and the uncollected amount lands in the audit trail.
func (m *Meter) Charge(ctx context.Context, req *ChargeRequest) (*ChargeReceipt, error) {
	if req == nil || req.Subject == "" || req.Feature == "" {
		return nil, ErrInvalidRequest
	}
	if req.Amount < 0 {
		return nil, ledger.ErrInvalidAmount
	}

	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.RecordOpDuration("charge", time.Since(start).Seconds())
		}
	}()

	receipt := &ChargeReceipt{}
	if req.Amount > 0 {
		ledgerReceipt, writeOff, err := m.debit(ctx, req)
		if err != nil {
			return nil, err
		}
		receipt.ReceiptID = ledgerReceipt.TransactionID
		receipt.WriteOff = writeOff
		receipt.Balance = ledgerReceipt.Balance

		if m.metrics != nil {
			if writeOff {
				m.metrics.RecordWriteOff(req.Feature, req.Amount.Cents())
			} else {
				m.metrics.RecordCharge(req.Feature, req.Amount.Cents())
			}
		}
	}

	if _, err := m.budget.Commit(ctx, req.Subject, req.Feature, req.Quantity); err != nil {
		// The debit already landed; losing the quota commit only makes
		// the daily budget slightly more permissive. Log and continue.
		m.logger.Error("failed to commit budget consumption",
			"subject", req.Subject,
			"feature", req.Feature,
			"error", err,
		)
	}

	rec := &usage.Record{
		IdempotencyKey: req.IdempotencyKey,
		Subject:        req.Subject,
		Feature:        req.Feature,
		Quantity:       req.Quantity,
		CostCents:      req.Amount.Cents(),
		WriteOff:       receipt.WriteOff,
		Metadata:       req.Metadata,
	}
	if err := m.recorder.Record(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	if receipt.ReceiptID == "" {
		receipt.ReceiptID = rec.ID
	}

	return receipt, nil
}

// debit applies the monetary part of a charge, falling back to a
// write-off when the balance cannot cover it.
func (m *Meter) debit(ctx context.Context, req *ChargeRequest) (*ledger.Receipt, bool, error) {
	var lastErr error
	for attempt := 0; attempt < debitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(debitRetryDelay):
			}
		}

		receipt, err := m.ledger.Debit(ctx, req.Subject, req.Amount, req.Reason, req.Metadata)
		if err == nil {
			return receipt, false, nil
		}

		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			receipt, err := m.ledger.WriteOff(ctx, req.Subject, req.Amount, req.Reason, req.Metadata)
			if err != nil {
				return nil, false, fmt.Errorf("failed to record write-off: %w", err)
			}
			return receipt, true, nil
		}

		lastErr = err
		m.logger.Warn("debit attempt failed",
			"subject", req.Subject,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}

// Balance returns the subject's current credit balance.
func (m *Meter) Balance(ctx context.Context, subject string) (ledger.Money, error) {
	return m.ledger.Balance(ctx, subject)
}

// Credit tops up the subject's balance.
func (m *Meter) Credit(ctx context.Context, subject string, amount ledger.Money, reason string, metadata map[string]string) (*ledger.Receipt, error) {
	return m.ledger.Credit(ctx, subject, amount, reason, metadata)
}

// Transactions returns the subject's most recent ledger transactions.
func (m *Meter) Transactions(ctx context.Context, subject string, limit int) ([]*ledger.Transaction, error) {
	return m.ledger.Transactions(ctx, subject, limit)
}

// Reconcile verifies the subject's balance against its transaction sum.
func (m *Meter) Reconcile(ctx context.Context, subject string) (balance, sum ledger.Money, ok bool, err error) {
	return m.ledger.Reconcile(ctx, subject)
}

// Usage returns the subject's most recent usage records.
func (m *Meter) Usage(ctx context.Context, subject string, limit int) ([]*usage.Record, error) {
	return m.recorder.Recent(ctx, subject, limit)
}

// FeatureTotals aggregates usage for a (subject, feature) pair within [from, to).
func (m *Meter) FeatureTotals(ctx context.Context, subject, feature string, from, to time.Time) (*usage.Totals, error) {
	return m.recorder.FeatureTotals(ctx, subject, feature, from, to)
}

// SlidingWindows exposes the in-memory limiter for the retention pruner.
func (m *Meter) SlidingWindows() *ratelimit.SlidingWindow {
	return m.sliding
}

// Close releases the underlying stores.
func (m *Meter) Close() error {
	recErr := m.recorder.Close()
	storeErr := m.store.Close()
	if recErr != nil {
		return recErr
	}
	return storeErr
}
