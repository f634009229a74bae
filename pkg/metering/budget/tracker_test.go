package budget

import (
	"context"
	"testing"
	"time"

	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/clock"
	"github.com/AgentWarhead/Voidspace-sub005/pkg/metering/storage"
)

func TestTracker_CheckAndReserve(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	tracker := NewTracker(storage.NewMemoryStore(), clk)
	ctx := context.Background()

	status, err := tracker.CheckAndReserve(ctx, "alice", "chat", 100)
	if err != nil {
		t.Fatalf("CheckAndReserve failed: %v", err)
	}
	if !status.Allowed {
		t.Error("Expected fresh day to be allowed")
	}
	if status.Remaining != 100 {
		t.Errorf("Expected remaining 100, got %d", status.Remaining)
	}

	expectedReset := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !status.Reset.Equal(expectedReset) {
		t.Errorf("Expected reset at %v, got %v", expectedReset, status.Reset)
	}
}

func TestTracker_DeniesWhenConsumed(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	tracker := NewTracker(storage.NewMemoryStore(), clk)
	ctx := context.Background()

	if _, err := tracker.Commit(ctx, "alice", "chat", 100); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	status, err := tracker.CheckAndReserve(ctx, "alice", "chat", 100)
	if err != nil {
		t.Fatalf("CheckAndReserve failed: %v", err)
	}
	if status.Allowed {
		t.Error("Expected denial at the daily limit")
	}
	if status.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", status.Remaining)
	}
}

func TestTracker_OvershootStaysDenied(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	tracker := NewTracker(storage.NewMemoryStore(), clk)
	ctx := context.Background()

	// The reservation is optimistic: a call admitted below the limit may
	// commit a quantity that overshoots it. Remaining never goes negative
	// and further calls are denied.
	consumed, err := tracker.Commit(ctx, "alice", "chat", 150)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if consumed != 150 {
		t.Errorf("Expected consumed 150, got %d", consumed)
	}

	status, _ := tracker.CheckAndReserve(ctx, "alice", "chat", 100)
	if status.Allowed {
		t.Error("Expected denial after overshoot")
	}
	if status.Remaining != 0 {
		t.Errorf("Expected remaining clamped to 0, got %d", status.Remaining)
	}
	if status.Consumed != 150 {
		t.Errorf("Expected consumed 150, got %d", status.Consumed)
	}
}

func TestTracker_DayRollover(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC))
	tracker := NewTracker(storage.NewMemoryStore(), clk)
	ctx := context.Background()

	tracker.Commit(ctx, "alice", "chat", 100)
	if status, _ := tracker.CheckAndReserve(ctx, "alice", "chat", 100); status.Allowed {
		t.Fatal("Expected denial before midnight")
	}

	// Crossing UTC midnight implicitly starts a fresh quota.
	clk.Advance(2 * time.Minute)
	status, err := tracker.CheckAndReserve(ctx, "alice", "chat", 100)
	if err != nil {
		t.Fatalf("CheckAndReserve failed: %v", err)
	}
	if !status.Allowed {
		t.Error("Expected fresh quota after midnight")
	}
	if status.Consumed != 0 {
		t.Errorf("Expected consumed 0, got %d", status.Consumed)
	}
}

func TestTracker_ZeroQuantityCountsAsOne(t *testing.T) {
	tracker := NewTracker(storage.NewMemoryStore(), clock.NewFake(time.Now()))

	consumed, err := tracker.Commit(context.Background(), "alice", "chat", 0)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if consumed != 1 {
		t.Errorf("Expected zero quantity to count as one unit, got %d", consumed)
	}
}

func TestTracker_NegativeQuantityRejected(t *testing.T) {
	tracker := NewTracker(storage.NewMemoryStore(), nil)

	if _, err := tracker.Commit(context.Background(), "alice", "chat", -5); err == nil {
		t.Error("Expected error for negative quantity")
	}
}

func TestTracker_NoLimitConfigured(t *testing.T) {
	tracker := NewTracker(storage.NewMemoryStore(), clock.NewFake(time.Now()))

	status, err := tracker.CheckAndReserve(context.Background(), "alice", "chat", 0)
	if err != nil {
		t.Fatalf("CheckAndReserve failed: %v", err)
	}
	if !status.Allowed {
		t.Error("Expected zero limit to mean no quota")
	}
}

func TestTracker_IndependentSubjectsAndFeatures(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	tracker := NewTracker(storage.NewMemoryStore(), clk)
	ctx := context.Background()

	tracker.Commit(ctx, "alice", "chat", 50)

	status, _ := tracker.CheckAndReserve(ctx, "bob", "chat", 50)
	if !status.Allowed {
		t.Error("Expected bob to be unaffected by alice's consumption")
	}

	status, _ = tracker.CheckAndReserve(ctx, "alice", "embed", 50)
	if !status.Allowed {
		t.Error("Expected alice's other feature to be unaffected")
	}
}
