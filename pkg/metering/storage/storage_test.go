package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Window Counter Tests
// ============================================================================

func TestMemoryStore_BumpWindow(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		count, allowed, err := store.BumpWindow(ctx, "alice\x1fchat", start, 3)
		if err != nil {
			t.Fatalf("BumpWindow failed: %v", err)
		}
		if !allowed {
			t.Errorf("call %d should be allowed", i)
		}
		if count != i {
			t.Errorf("Expected count %d, got %d", i, count)
		}
	}

	// Fourth call in the same window is denied.
	count, allowed, err := store.BumpWindow(ctx, "alice\x1fchat", start, 3)
	if err != nil {
		t.Fatalf("BumpWindow failed: %v", err)
	}
	if allowed {
		t.Error("Expected fourth call to be denied")
	}
	if count != 3 {
		t.Errorf("Expected count to stay at 3, got %d", count)
	}
}

func TestMemoryStore_BumpWindow_Rollover(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	first := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	// Fill the first window.
	for i := 0; i < 2; i++ {
		if _, _, err := store.BumpWindow(ctx, "k", first, 2); err != nil {
			t.Fatalf("BumpWindow failed: %v", err)
		}
	}
	if _, allowed, _ := store.BumpWindow(ctx, "k", first, 2); allowed {
		t.Error("Expected first window to be full")
	}

	// A new window start replaces the expired one.
	count, allowed, err := store.BumpWindow(ctx, "k", second, 2)
	if err != nil {
		t.Fatalf("BumpWindow failed: %v", err)
	}
	if !allowed {
		t.Error("Expected new window to admit")
	}
	if count != 1 {
		t.Errorf("Expected fresh count 1, got %d", count)
	}
}

func TestMemoryStore_BumpWindow_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	const limit = 10
	const callers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := store.BumpWindow(ctx, "k", start, limit)
			if err != nil {
				t.Errorf("BumpWindow failed: %v", err)
				return
			}
			if allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("Expected exactly %d admissions, got %d", limit, admitted)
	}
}

func TestMemoryStore_PruneWindows(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	old := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	store.BumpWindow(ctx, "old", old, 5)
	store.BumpWindow(ctx, "fresh", fresh, 5)

	deleted, err := store.PruneWindows(ctx, fresh)
	if err != nil {
		t.Fatalf("PruneWindows failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted window, got %d", deleted)
	}

	// The fresh window still counts.
	count, _, _ := store.BumpWindow(ctx, "fresh", fresh, 5)
	if count != 2 {
		t.Errorf("Expected surviving window count 2, got %d", count)
	}
}

// ============================================================================
// Quota Tests
// ============================================================================

func TestMemoryStore_Quota(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	consumed, err := store.QuotaConsumed(ctx, "alice", "chat", "2026-08-29")
	if err != nil {
		t.Fatalf("QuotaConsumed failed: %v", err)
	}
	if consumed != 0 {
		t.Errorf("Expected 0 consumed, got %d", consumed)
	}

	total, err := store.AddQuotaConsumed(ctx, "alice", "chat", "2026-08-29", 150)
	if err != nil {
		t.Fatalf("AddQuotaConsumed failed: %v", err)
	}
	if total != 150 {
		t.Errorf("Expected total 150, got %d", total)
	}

	total, err = store.AddQuotaConsumed(ctx, "alice", "chat", "2026-08-29", 50)
	if err != nil {
		t.Fatalf("AddQuotaConsumed failed: %v", err)
	}
	if total != 200 {
		t.Errorf("Expected total 200, got %d", total)
	}

	// Different day is a separate counter.
	consumed, _ = store.QuotaConsumed(ctx, "alice", "chat", "2026-08-30")
	if consumed != 0 {
		t.Errorf("Expected fresh day to start at 0, got %d", consumed)
	}
}

func TestMemoryStore_Quota_InvalidSubject(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, err := store.QuotaConsumed(context.Background(), "", "chat", "2026-08-29")
	if !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Expected ErrInvalidSubject, got %v", err)
	}
}

func TestMemoryStore_PruneQuotas(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.AddQuotaConsumed(ctx, "alice", "chat", "2026-08-01", 10)
	store.AddQuotaConsumed(ctx, "alice", "chat", "2026-08-29", 10)

	deleted, err := store.PruneQuotas(ctx, "2026-08-15")
	if err != nil {
		t.Fatalf("PruneQuotas failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted quota, got %d", deleted)
	}

	consumed, _ := store.QuotaConsumed(ctx, "alice", "chat", "2026-08-29")
	if consumed != 10 {
		t.Errorf("Expected recent quota to survive, got %d", consumed)
	}
}

// ============================================================================
// Ledger Tests
// ============================================================================

func TestMemoryStore_Balance_NewAccount(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	balance, err := store.Balance(context.Background(), "newcomer")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("Expected zero balance for new account, got %d", balance)
	}
}

func TestMemoryStore_ApplyTransaction(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	balance, err := store.ApplyTransaction(ctx, &TransactionRecord{
		ID: "tx-1", Subject: "alice", Kind: KindCredit, Amount: 1000, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if balance != 1000 {
		t.Errorf("Expected balance 1000, got %d", balance)
	}

	balance, err = store.ApplyTransaction(ctx, &TransactionRecord{
		ID: "tx-2", Subject: "alice", Kind: KindDebit, Amount: -300, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if balance != 700 {
		t.Errorf("Expected balance 700, got %d", balance)
	}
}

func TestMemoryStore_ApplyTransaction_InsufficientFunds(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.ApplyTransaction(ctx, &TransactionRecord{
		ID: "tx-1", Subject: "alice", Kind: KindCredit, Amount: 100, CreatedAt: time.Now(),
	})

	balance, err := store.ApplyTransaction(ctx, &TransactionRecord{
		ID: "tx-2", Subject: "alice", Kind: KindDebit, Amount: -500, CreatedAt: time.Now(),
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if balance != 100 {
		t.Errorf("Expected untouched balance 100, got %d", balance)
	}

	// The rejected transaction must not appear in the trail.
	records, _ := store.Transactions(ctx, "alice", 0)
	if len(records) != 1 {
		t.Errorf("Expected 1 transaction, got %d", len(records))
	}
}

func TestMemoryStore_ApplyTransaction_ConcurrentDebits(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.ApplyTransaction(ctx, &TransactionRecord{
		ID: "seed", Subject: "alice", Kind: KindCredit, Amount: 500, CreatedAt: time.Now(),
	})

	// 20 concurrent debits of 100 against a balance of 500: exactly 5
	// may succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.ApplyTransaction(ctx, &TransactionRecord{
				ID: "tx", Subject: "alice", Kind: KindDebit, Amount: -100, CreatedAt: time.Now(),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 5 {
		t.Errorf("Expected exactly 5 successful debits, got %d", succeeded)
	}

	balance, _ := store.Balance(ctx, "alice")
	if balance != 0 {
		t.Errorf("Expected final balance 0, got %d", balance)
	}
}

func TestMemoryStore_TransactionSum(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.ApplyTransaction(ctx, &TransactionRecord{ID: "1", Subject: "alice", Kind: KindCredit, Amount: 1000, CreatedAt: time.Now()})
	store.ApplyTransaction(ctx, &TransactionRecord{ID: "2", Subject: "alice", Kind: KindDebit, Amount: -250, CreatedAt: time.Now()})
	store.ApplyTransaction(ctx, &TransactionRecord{ID: "3", Subject: "alice", Kind: KindWriteOff, Amount: 0, CreatedAt: time.Now()})

	sum, err := store.TransactionSum(ctx, "alice")
	if err != nil {
		t.Fatalf("TransactionSum failed: %v", err)
	}

	balance, _ := store.Balance(ctx, "alice")
	if sum != balance {
		t.Errorf("Expected sum %d to equal balance %d", sum, balance)
	}
	if sum != 750 {
		t.Errorf("Expected sum 750, got %d", sum)
	}
}

func TestMemoryStore_Transactions_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		store.ApplyTransaction(ctx, &TransactionRecord{
			ID: string(rune('a' + i)), Subject: "alice", Kind: KindCredit,
			Amount: 100, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	records, err := store.Transactions(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "c" || records[1].ID != "b" {
		t.Errorf("Expected newest first order [c b], got [%s %s]", records[0].ID, records[1].ID)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	store.Close()

	if _, _, err := store.BumpWindow(context.Background(), "k", time.Now(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := store.Balance(context.Background(), "alice"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
