package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage/memory"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	svc := NewService(
		memory.NewBalanceRepo(store),
		memory.NewLedgerRepo(store),
		memory.NewSubscriptionRepo(store),
		opts...,
	)
	return svc, store
}

func TestGetBalanceCreatesAccountAtFloor(t *testing.T) {
	svc, _ := newTestService(t)

	info, err := svc.GetBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if info.Tier != domain.TierFree {
		t.Errorf("Tier = %s, want free", info.Tier)
	}
	if info.Balance != 20 {
		t.Errorf("Balance = %d, want full floor capacity 20", info.Balance)
	}
	if info.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", info.Capacity)
	}
}

func TestConsume(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	after, err := svc.Consume(ctx, "acct-1", 6, "job_admission", "job-1", nil)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if after != 14 {
		t.Errorf("balance after = %d, want 14", after)
	}

	entries, err := svc.History(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Amount != -6 || e.Kind != domain.EntrySpend || e.BalanceAfter != 14 {
		t.Errorf("entry = {amount %d, kind %s, after %d}, want {-6, SPEND, 14}", e.Amount, e.Kind, e.BalanceAfter)
	}
}

func TestConsumeInsufficientBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Consume(ctx, "acct-1", 25, "job_admission", "job-1", nil)
	if !IsInsufficientBalance(err) {
		t.Fatalf("err = %v, want *InsufficientBalanceError", err)
	}

	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatal("errors.As failed")
	}
	if ib.Required != 25 || ib.Available != 20 {
		t.Errorf("required/available = %d/%d, want 25/20", ib.Required, ib.Available)
	}

	// The failed consume must not touch the balance or the entry log.
	info, _ := svc.GetBalance(ctx, "acct-1")
	if info.Balance != 20 {
		t.Errorf("balance = %d, want untouched 20", info.Balance)
	}
	entries, _ := svc.History(ctx, "acct-1", 10)
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestConsumeInvalidAmount(t *testing.T) {
	svc, _ := newTestService(t)
	for _, amount := range []int64{0, -5} {
		if _, err := svc.Consume(context.Background(), "acct-1", amount, "x", "", nil); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Consume(%d) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if _, err := svc.Grant(context.Background(), "acct-1", 0, domain.EntryEarnBonus, "x", "", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Error("Grant(0) should be ErrInvalidAmount")
	}
}

func TestConcurrentConsumesNeverOversell(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Floor capacity is 20; forty concurrent spends of 1 must produce
	// exactly twenty successes.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, "acct-1", 1, "job_admission", "", nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 20 {
		t.Errorf("succeeded = %d, want 20", succeeded)
	}
	info, _ := svc.GetBalance(ctx, "acct-1")
	if info.Balance != 0 {
		t.Errorf("balance = %d, want 0", info.Balance)
	}
}

func TestEntryChainReplaysToBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Consume(ctx, "acct-1", 6, "job_admission", "job-1", nil)
	_, _ = svc.Refund(ctx, "acct-1", 6, "job-1", "TIMEOUT")
	_, _ = svc.Consume(ctx, "acct-1", 3, "job_admission", "job-2", nil)
	_, _ = svc.Grant(ctx, "acct-1", 50, domain.EntryEarnBonus, "admin_grant", "", nil)

	entries, err := svc.History(ctx, "acct-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	// Entries come newest first; replay oldest first from the starting
	// balance and compare each BalanceAfter snapshot.
	balance := int64(20)
	for i := len(entries) - 1; i >= 0; i-- {
		balance += entries[i].Amount
		if entries[i].BalanceAfter != balance {
			t.Errorf("entry %d: BalanceAfter = %d, replay says %d", i, entries[i].BalanceAfter, balance)
		}
	}

	info, _ := svc.GetBalance(ctx, "acct-1")
	if info.Balance != balance {
		t.Errorf("balance = %d, replayed chain says %d", info.Balance, balance)
	}
}

func TestGrantRegenerationClampsAtCapacity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Consume(ctx, "acct-1", 5, "job_admission", "", nil)

	after, err := svc.Grant(ctx, "acct-1", 100, domain.EntryEarnRegeneration, "regeneration", "", nil)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if after != 20 {
		t.Errorf("balance = %d, want clamped to capacity 20", after)
	}

	// At capacity a further regeneration grant adds nothing and writes
	// no entry.
	entriesBefore, _ := svc.History(ctx, "acct-1", 0)
	after, err = svc.Grant(ctx, "acct-1", 5, domain.EntryEarnRegeneration, "regeneration", "", nil)
	if err != nil || after != 20 {
		t.Errorf("grant at capacity: after=%d err=%v, want 20/nil", after, err)
	}
	entriesAfter, _ := svc.History(ctx, "acct-1", 0)
	if len(entriesAfter) != len(entriesBefore) {
		t.Error("zero-token grant wrote a ledger entry")
	}
}

func TestGrantBonusExceedsCapacity(t *testing.T) {
	svc, _ := newTestService(t)

	after, err := svc.Grant(context.Background(), "acct-1", 100, domain.EntryEarnBonus, "admin_grant", "", nil)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if after != 120 {
		t.Errorf("balance = %d, want 120 (bonus grants are uncapped)", after)
	}
}

func TestRegenerate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	// Drain 10 credits so there is room to regenerate into.
	if _, err := svc.Consume(ctx, "acct-1", 10, "job_admission", "", nil); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	// Less than one whole interval: nothing due.
	now = now.Add(14 * time.Minute)
	added, err := svc.Regenerate(ctx, "acct-1")
	if err != nil || added != 0 {
		t.Fatalf("early regenerate: added=%d err=%v, want 0/nil", added, err)
	}

	// 2.5 intervals elapsed: free tier yields 1/interval, so 2 tokens.
	now = now.Add(23*time.Minute + 30*time.Second)
	added, err = svc.Regenerate(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	// The half interval remainder stays banked: 15 more minutes is a
	// full interval relative to the advanced anchor plus the remainder.
	now = now.Add(8 * time.Minute)
	added, err = svc.Regenerate(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1 (remainder banked)", added)
	}
}

func TestRegenerateIdempotentAndClamped(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, _ = svc.Consume(ctx, "acct-1", 3, "job_admission", "", nil)

	// A week away: far more than the 3 missing tokens are due.
	now = now.Add(7 * 24 * time.Hour)
	added, err := svc.Regenerate(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want clamp to room 3", added)
	}

	// Immediately again: nothing due, nothing added.
	added, err = svc.Regenerate(ctx, "acct-1")
	if err != nil || added != 0 {
		t.Errorf("second regenerate: added=%d err=%v, want 0/nil", added, err)
	}
}

func TestUpgradeTier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Consume(ctx, "acct-1", 15, "job_admission", "", nil)

	result, err := svc.UpgradeTier(ctx, "acct-1", domain.TierPro)
	if err != nil {
		t.Fatalf("UpgradeTier: %v", err)
	}
	if result.PreviousTier != domain.TierFree || result.NewTier != domain.TierPro {
		t.Errorf("tiers = %s -> %s, want free -> pro", result.PreviousTier, result.NewTier)
	}
	if result.NewBalance != 500 {
		t.Errorf("NewBalance = %d, want full pro capacity 500", result.NewBalance)
	}
	if result.TokensGranted != 495 {
		t.Errorf("TokensGranted = %d, want 495", result.TokensGranted)
	}

	entries, _ := svc.History(ctx, "acct-1", 1)
	if len(entries) != 1 || entries[0].Kind != domain.EntryEarnPurchase {
		t.Fatalf("newest entry kind = %v, want EARN_PURCHASE", entries)
	}
}

func TestUpgradeTierInvalidPaths(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpgradeTier(ctx, "acct-1", domain.Tier("platinum")); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("unknown tier err = %v, want ErrUnknownTier", err)
	}

	if _, err := svc.UpgradeTier(ctx, "acct-1", domain.TierFree); !errors.Is(err, ErrInvalidUpgradePath) {
		t.Errorf("same tier err = %v, want ErrInvalidUpgradePath", err)
	}

	_, _ = svc.UpgradeTier(ctx, "acct-1", domain.TierStudio)
	if _, err := svc.UpgradeTier(ctx, "acct-1", domain.TierStarter); !errors.Is(err, ErrInvalidUpgradePath) {
		t.Errorf("downward upgrade err = %v, want ErrInvalidUpgradePath", err)
	}
}

func TestScheduleAndApplyDowngrade(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UpgradeTier(ctx, "acct-1", domain.TierPro); err != nil {
		t.Fatalf("UpgradeTier: %v", err)
	}

	if err := svc.ScheduleDowngrade(ctx, "acct-1", domain.TierStarter); err != nil {
		t.Fatalf("ScheduleDowngrade: %v", err)
	}

	// Scheduling touches nothing until the billing trigger fires.
	info, _ := svc.GetBalance(ctx, "acct-1")
	if info.Tier != domain.TierPro || info.Balance != 500 {
		t.Errorf("after schedule: tier=%s balance=%d, want pro/500", info.Tier, info.Balance)
	}

	if err := svc.ApplyScheduledDowngrade(ctx, "acct-1"); err != nil {
		t.Fatalf("ApplyScheduledDowngrade: %v", err)
	}

	// The tier drops with no token grant; the balance may now sit above
	// the new capacity and just stops regenerating.
	info, _ = svc.GetBalance(ctx, "acct-1")
	if info.Tier != domain.TierStarter {
		t.Errorf("tier = %s, want starter", info.Tier)
	}
	if info.Balance != 500 {
		t.Errorf("balance = %d, want 500 kept as-is", info.Balance)
	}

	// Applying again is a no-op.
	if err := svc.ApplyScheduledDowngrade(ctx, "acct-1"); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	info, _ = svc.GetBalance(ctx, "acct-1")
	if info.Tier != domain.TierStarter {
		t.Errorf("tier after no-op apply = %s, want starter", info.Tier)
	}
}

func TestScheduleDowngradeInvalidPaths(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.ScheduleDowngrade(ctx, "acct-1", domain.Tier("wood")); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("unknown tier err = %v, want ErrUnknownTier", err)
	}
	// Account is at the floor: no lower tier exists.
	if err := svc.ScheduleDowngrade(ctx, "acct-1", domain.TierFree); !errors.Is(err, ErrInvalidDowngradePath) {
		t.Errorf("same tier err = %v, want ErrInvalidDowngradePath", err)
	}
}

func TestUpgradeClearsPendingDowngrade(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.UpgradeTier(ctx, "acct-1", domain.TierStarter)
	if err := svc.ScheduleDowngrade(ctx, "acct-1", domain.TierFree); err != nil {
		t.Fatalf("ScheduleDowngrade: %v", err)
	}

	if _, err := svc.UpgradeTier(ctx, "acct-1", domain.TierPro); err != nil {
		t.Fatalf("UpgradeTier: %v", err)
	}

	// The upgrade superseded the pending downgrade: the trigger finds
	// nothing to apply.
	if err := svc.ApplyScheduledDowngrade(ctx, "acct-1"); err != nil {
		t.Fatalf("ApplyScheduledDowngrade: %v", err)
	}
	info, _ := svc.GetBalance(ctx, "acct-1")
	if info.Tier != domain.TierPro {
		t.Errorf("tier = %s, want pro (downgrade cleared by upgrade)", info.Tier)
	}
}

func TestRefundRestoresSpentCredits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Consume(ctx, "acct-1", 6, "job_admission", "job-1", nil)
	after, err := svc.Refund(ctx, "acct-1", 6, "job-1", "TIMEOUT")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if after != 20 {
		t.Errorf("balance = %d, want restored 20", after)
	}

	entries, _ := svc.History(ctx, "acct-1", 1)
	if len(entries) != 1 {
		t.Fatal("missing refund entry")
	}
	e := entries[0]
	if e.Kind != domain.EntryRefund || e.SourceID != "job-1" || e.Metadata["reason"] != "TIMEOUT" {
		t.Errorf("refund entry = {kind %s, sourceID %s, reason %s}", e.Kind, e.SourceID, e.Metadata["reason"])
	}
}
