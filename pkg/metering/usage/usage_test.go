package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
)

// ============================================================================
// Recorder Tests
// ============================================================================

func TestRecorder_FillsIDAndTimestamp(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	recorder := NewRecorder(NewMemoryStore(), nil, clk)

	rec := &Record{Subject: "alice", Feature: "chat", Quantity: 120, CostCents: 495}
	if err := recorder.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if rec.ID == "" {
		t.Error("Expected an ID to be assigned")
	}
	if !rec.CreatedAt.Equal(clk.Now()) {
		t.Errorf("Expected CreatedAt %v, got %v", clk.Now(), rec.CreatedAt)
	}
}

func TestRecorder_InvalidRecord(t *testing.T) {
	recorder := NewRecorder(NewMemoryStore(), nil, nil)
	ctx := context.Background()

	if err := recorder.Record(ctx, nil); err != ErrInvalidRecord {
		t.Errorf("Expected ErrInvalidRecord for nil, got %v", err)
	}
	if err := recorder.Record(ctx, &Record{Feature: "chat"}); err != ErrInvalidRecord {
		t.Errorf("Expected ErrInvalidRecord for missing subject, got %v", err)
	}
	if err := recorder.Record(ctx, &Record{Subject: "alice"}); err != ErrInvalidRecord {
		t.Errorf("Expected ErrInvalidRecord for missing feature, got %v", err)
	}
}

func TestRecorder_SurvivesCancelledContext(t *testing.T) {
	recorder := NewRecorder(NewMemoryStore(), nil, nil)

	// The gated call already completed; usage must still be recorded
	// even when the request context is done.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &Record{Subject: "alice", Feature: "chat", Quantity: 1}
	if err := recorder.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed under cancelled context: %v", err)
	}

	records, err := recorder.Recent(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestMemoryStore_IdempotencyDedupe(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store, nil, nil)
	ctx := context.Background()

	first := &Record{IdempotencyKey: "req-1", Subject: "alice", Feature: "chat", Quantity: 100, CostCents: 50}
	if err := recorder.Record(ctx, first); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A retried settlement with the same key is dropped silently.
	retry := &Record{IdempotencyKey: "req-1", Subject: "alice", Feature: "chat", Quantity: 100, CostCents: 50}
	if err := recorder.Record(ctx, retry); err != nil {
		t.Fatalf("retried Record failed: %v", err)
	}

	records, _ := recorder.Recent(ctx, "alice", 10)
	if len(records) != 1 {
		t.Errorf("Expected 1 record after dedupe, got %d", len(records))
	}
}

func TestMemoryStore_Recent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		store.Append(ctx, &Record{
			ID: string(rune('a' + i)), Subject: "alice", Feature: "chat",
			Quantity: 1, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	store.Append(ctx, &Record{ID: "x", Subject: "bob", Feature: "chat", Quantity: 1, CreatedAt: base})

	records, err := store.Recent(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "c" || records[1].ID != "b" {
		t.Errorf("Expected newest first [c b], got [%s %s]", records[0].ID, records[1].ID)
	}
}

func TestMemoryStore_FeatureTotals(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	store.Append(ctx, &Record{ID: "1", Subject: "alice", Feature: "chat", Quantity: 100, CostCents: 50, CreatedAt: base.Add(time.Hour)})
	store.Append(ctx, &Record{ID: "2", Subject: "alice", Feature: "chat", Quantity: 200, CostCents: 75, CreatedAt: base.Add(2 * time.Hour)})
	store.Append(ctx, &Record{ID: "3", Subject: "alice", Feature: "embed", Quantity: 999, CostCents: 10, CreatedAt: base.Add(time.Hour)})
	store.Append(ctx, &Record{ID: "4", Subject: "alice", Feature: "chat", Quantity: 400, CostCents: 20, CreatedAt: base.Add(25 * time.Hour)})

	totals, err := store.FeatureTotals(ctx, "alice", "chat", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FeatureTotals failed: %v", err)
	}
	if totals.Quantity != 300 {
		t.Errorf("Expected quantity 300, got %d", totals.Quantity)
	}
	if totals.CostCents != 125 {
		t.Errorf("Expected cost 125, got %d", totals.CostCents)
	}
	if totals.Records != 2 {
		t.Errorf("Expected 2 records, got %d", totals.Records)
	}
}

// ============================================================================
// SQLite Store Tests
// ============================================================================

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(&SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "usage.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStore_AppendAndRecent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	rec := &Record{
		ID: "rec-1", Subject: "alice", Feature: "chat",
		Quantity: 120, CostCents: 495, WriteOff: true,
		Metadata:  map[string]string{"provider": "upstream"},
		CreatedAt: base,
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.Recent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.Quantity != 120 || got.CostCents != 495 {
		t.Errorf("Expected quantity 120 cost 495, got %d/%d", got.Quantity, got.CostCents)
	}
	if !got.WriteOff {
		t.Error("Expected write-off flag to round-trip")
	}
	if got.Metadata["provider"] != "upstream" {
		t.Errorf("Expected metadata to round-trip, got %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("Expected CreatedAt %v, got %v", base, got.CreatedAt)
	}
}

func TestSQLiteStore_IdempotencyDedupe(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	store.Append(ctx, &Record{ID: "rec-1", IdempotencyKey: "req-1", Subject: "alice", Feature: "chat", Quantity: 1, CreatedAt: now})
	store.Append(ctx, &Record{ID: "rec-2", IdempotencyKey: "req-1", Subject: "alice", Feature: "chat", Quantity: 1, CreatedAt: now})

	// Records without keys never collide.
	store.Append(ctx, &Record{ID: "rec-3", Subject: "alice", Feature: "chat", Quantity: 1, CreatedAt: now})
	store.Append(ctx, &Record{ID: "rec-4", Subject: "alice", Feature: "chat", Quantity: 1, CreatedAt: now})

	records, err := store.Recent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records (1 deduped), got %d", len(records))
	}
}

func TestSQLiteStore_FeatureTotals(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	store.Append(ctx, &Record{ID: "1", Subject: "alice", Feature: "chat", Quantity: 100, CostCents: 30, CreatedAt: base.Add(time.Hour)})
	store.Append(ctx, &Record{ID: "2", Subject: "alice", Feature: "chat", Quantity: 50, CostCents: 20, CreatedAt: base.Add(2 * time.Hour)})
	store.Append(ctx, &Record{ID: "3", Subject: "bob", Feature: "chat", Quantity: 999, CostCents: 99, CreatedAt: base.Add(time.Hour)})

	totals, err := store.FeatureTotals(ctx, "alice", "chat", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FeatureTotals failed: %v", err)
	}
	if totals.Quantity != 150 || totals.CostCents != 50 || totals.Records != 2 {
		t.Errorf("Expected 150/50/2, got %d/%d/%d", totals.Quantity, totals.CostCents, totals.Records)
	}
}
