// Package retention prunes expired limiter state from the shared store.
//
// # What Gets Pruned
//
// Rate windows and daily quota counters reset implicitly: an expired
// window or a past day simply stops being read. The rows stay behind,
// so the pruner deletes them once they are old enough to never be read
// again:
//
//   - Expired fixed-window counters (age-based, WindowRetention)
//   - In-memory sliding-window keys with no recent admissions
//   - Daily quota counters older than QuotaRetentionDays
//
// Ledger transactions and usage records are the audit trail and are
// never pruned.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, sliding, &retention.Config{
//	    WindowRetention:    24 * time.Hour,
//	    QuotaRetentionDays: 90,
//	    PruneSchedule:      "0 3 * * *", // Daily at 3 AM
//	}, nil)
//
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
//
// # Scheduling
//
// The pruner runs on a standard cron schedule. If no schedule is
// configured (empty PruneSchedule), the scheduler does nothing and
// Start() returns immediately without error. Pruning can also be
// triggered manually with Prune().
package retention
