package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/ratelimit"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
)

// dayFormat is the UTC day key layout used by the quota tables.
const dayFormat = "2006-01-02"

// Config contains configuration for the retention pruner.
type Config struct {
	// WindowRetention is how long expired rate windows are kept before
	// pruning. It must exceed the longest configured rate window.
	// Default: 24 hours
	WindowRetention time.Duration

	// QuotaRetentionDays is the number of days to retain daily quota
	// counters. 0 means keep them forever (no pruning).
	QuotaRetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		WindowRetention:    24 * time.Hour,
		QuotaRetentionDays: 90,
		PruneSchedule:      "0 3 * * *",
	}
}

// Pruner removes expired limiter state from the shared store.
//
// Rate windows and daily quota counters reset implicitly when their
// window or day passes; expired rows stop being read but still occupy
// the store. The pruner deletes them after a retention margin. Ledger
// transactions and usage records are the audit trail and are never
// pruned.
type Pruner struct {
	store     storage.Store
	sliding   *ratelimit.SlidingWindow
	config    *Config
	clock     clock.Clock
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a retention pruner over the shared store.
// The sliding limiter is optional; pass nil when none is configured.
func NewPruner(store storage.Store, sliding *ratelimit.SlidingWindow, config *Config, clk clock.Clock) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WindowRetention <= 0 {
		config.WindowRetention = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.System{}
	}

	pruner := &Pruner{
		store:   store,
		sliding: sliding,
		config:  config,
		clock:   clk,
		logger:  slog.Default().With("component", "metering.retention"),
	}

	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Prune deletes expired rate windows and stale daily quota counters.
// Returns the total number of rows deleted.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	now := p.clock.Now()
	totalDeleted := 0

	cutoff := now.Add(-p.config.WindowRetention)
	deleted, err := p.store.PruneWindows(ctx, cutoff)
	if err != nil {
		return totalDeleted, fmt.Errorf("prune windows failed: %w", err)
	}
	totalDeleted += deleted

	if p.sliding != nil {
		totalDeleted += p.sliding.Prune(cutoff)
	}

	if p.config.QuotaRetentionDays > 0 {
		beforeDay := now.UTC().AddDate(0, 0, -p.config.QuotaRetentionDays).Format(dayFormat)
		deleted, err := p.store.PruneQuotas(ctx, beforeDay)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune quotas failed: %w", err)
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 {
		p.logger.Info("limiter state pruned",
			"deleted_count", totalDeleted,
			"window_retention", p.config.WindowRetention,
			"quota_retention_days", p.config.QuotaRetentionDays,
		)
	} else {
		p.logger.Debug("no limiter state pruned")
	}

	return totalDeleted, nil
}

// Start starts the automatic pruning scheduler.
// Call this when starting the application.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
// Call this during graceful shutdown.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
