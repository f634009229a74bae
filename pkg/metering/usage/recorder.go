package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
)

// RecorderConfig contains configuration for the usage recorder.
type RecorderConfig struct {
	// WriteTimeout bounds each store write so that a slow store cannot
	// hold up a response whose outcome is already decided.
	// Default: 2 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		WriteTimeout: 2 * time.Second,
	}
}

// Recorder appends usage records to a store.
type Recorder struct {
	store  Store
	config *RecorderConfig
	clock  clock.Clock
	logger *slog.Logger
}

// NewRecorder creates a usage recorder with the provided store.
// A nil config uses defaults; a nil clk defaults to the system clock.
func NewRecorder(store Store, config *RecorderConfig, clk clock.Clock) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Recorder{
		store:  store,
		config: config,
		clock:  clk,
		logger: slog.Default().With("component", "metering.usage"),
	}
}

// Record durably appends a usage record and returns once it is written.
// Missing IDs and timestamps are filled in. The write carries its own
// timeout derived from the recorder config, detached from the caller's
// deadline: usage must still be recorded when the request context is
// already done.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Subject == "" || rec.Feature == "" {
		return ErrInvalidRecord
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.Append(writeCtx, rec); err != nil {
		r.logger.Error("failed to append usage record",
			"record_id", rec.ID,
			"subject", rec.Subject,
			"feature", rec.Feature,
			"error", err,
		)
		return err
	}

	duration := time.Since(start)
	r.logger.Debug("usage recorded",
		"record_id", rec.ID,
		"subject", rec.Subject,
		"feature", rec.Feature,
		"quantity", rec.Quantity,
		"cost_cents", rec.CostCents,
		"write_off", rec.WriteOff,
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow usage write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return nil
}

// Recent returns the most recent records for a subject, newest first.
func (r *Recorder) Recent(ctx context.Context, subject string, limit int) ([]*Record, error) {
	return r.store.Recent(ctx, subject, limit)
}

// FeatureTotals aggregates usage for a (subject, feature) pair within [from, to).
func (r *Recorder) FeatureTotals(ctx context.Context, subject, feature string, from, to time.Time) (*Totals, error) {
	return r.store.FeatureTotals(ctx, subject, feature, from, to)
}

// Close releases the underlying store.
func (r *Recorder) Close() error {
	return r.store.Close()
}
