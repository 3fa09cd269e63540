package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
)

func TestAccountTxAppliesOnSuccess(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewBalanceRepo(store)
	ctx := context.Background()

	err := repo.WithAccountTx(ctx, "acct-1", func(tx storage.AccountTx) error {
		if err := tx.SaveBalance(ctx, &domain.Balance{AccountID: "acct-1", Balance: 10, Tier: domain.TierFree}); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &domain.LedgerEntry{ID: "e1", AccountID: "acct-1", Amount: 10, BalanceAfter: 10})
	})
	if err != nil {
		t.Fatalf("WithAccountTx: %v", err)
	}

	b, err := repo.Get(ctx, "acct-1")
	if err != nil || b == nil {
		t.Fatalf("Get: %v, %v", b, err)
	}
	if b.Balance != 10 {
		t.Errorf("Balance = %d, want 10", b.Balance)
	}

	entries, _ := NewLedgerRepo(store).ListByAccount(ctx, "acct-1", 0)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestAccountTxDiscardsOnError(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewBalanceRepo(store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithAccountTx(ctx, "acct-1", func(tx storage.AccountTx) error {
		_ = tx.SaveBalance(ctx, &domain.Balance{AccountID: "acct-1", Balance: 10})
		_ = tx.AppendEntry(ctx, &domain.LedgerEntry{ID: "e1", AccountID: "acct-1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	b, _ := repo.Get(ctx, "acct-1")
	if b != nil {
		t.Error("failed tx must not persist the balance")
	}
	entries, _ := NewLedgerRepo(store).ListByAccount(ctx, "acct-1", 0)
	if len(entries) != 0 {
		t.Error("failed tx must not persist entries")
	}
}

func TestAccountTxReadsStagedWrite(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewBalanceRepo(store)
	ctx := context.Background()

	err := repo.WithAccountTx(ctx, "acct-1", func(tx storage.AccountTx) error {
		if err := tx.SaveBalance(ctx, &domain.Balance{AccountID: "acct-1", Balance: 7}); err != nil {
			return err
		}
		b, err := tx.GetBalance(ctx)
		if err != nil {
			return err
		}
		if b == nil || b.Balance != 7 {
			t.Errorf("staged read = %v, want balance 7", b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithAccountTx: %v", err)
	}
}

func TestJobRepoNotFound(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewJobRepo(store)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("Get err = %v, want ErrJobNotFound", err)
	}
	if err := repo.UpdateStatus(ctx, "nope", domain.JobStatusFailed, "", nil); !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("UpdateStatus err = %v, want ErrJobNotFound", err)
	}

	_ = repo.Create(ctx, &domain.Job{ID: "j1", AccountID: "acct-1"})
	if _, err := repo.GetForAccount(ctx, "j1", "acct-2"); !errors.Is(err, storage.ErrJobNotFound) {
		t.Errorf("GetForAccount cross-account err = %v, want ErrJobNotFound", err)
	}
}

func TestJobRepoUpdateStatusKeepsErrorMessage(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewJobRepo(store)
	ctx := context.Background()

	_ = repo.Create(ctx, &domain.Job{ID: "j1", AccountID: "acct-1", Status: domain.JobStatusProcessing})

	now := time.Now()
	if err := repo.UpdateStatus(ctx, "j1", domain.JobStatusFailed, "it broke", &now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// The refunded transition passes no message; the failure text stays.
	if err := repo.UpdateStatus(ctx, "j1", domain.JobStatusRefunded, "", nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	j, _ := repo.Get(ctx, "j1")
	if j.Status != domain.JobStatusRefunded {
		t.Errorf("Status = %s, want refunded", j.Status)
	}
	if j.ErrorMessage != "it broke" {
		t.Errorf("ErrorMessage = %q, want preserved failure text", j.ErrorMessage)
	}
}

func TestJobRepoCountOlderThan(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewJobRepo(store)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	_ = repo.Create(ctx, &domain.Job{ID: "j1", AccountID: "a", Status: domain.JobStatusProcessing, CreatedAt: old})
	_ = repo.Create(ctx, &domain.Job{ID: "j2", AccountID: "a", Status: domain.JobStatusProcessing, CreatedAt: time.Now()})
	_ = repo.Create(ctx, &domain.Job{ID: "j3", AccountID: "a", Status: domain.JobStatusCompleted, CreatedAt: old})

	count, err := repo.CountOlderThan(ctx, domain.JobStatusProcessing, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("CountOlderThan: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestSubscriptionRepoCopies(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewSubscriptionRepo(store)
	ctx := context.Background()

	target := domain.TierFree
	sub := &domain.Subscription{AccountID: "acct-1", Tier: domain.TierPro, ScheduledDowngradeTo: &target}
	if err := repo.Save(ctx, sub); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's pointer must not leak into the store.
	*sub.ScheduledDowngradeTo = domain.TierStudio

	got, err := repo.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ScheduledDowngradeTo == nil || *got.ScheduledDowngradeTo != domain.TierFree {
		t.Errorf("ScheduledDowngradeTo = %v, want free", got.ScheduledDowngradeTo)
	}

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, storage.ErrSubscriptionNotFound) {
		t.Errorf("Get missing err = %v, want ErrSubscriptionNotFound", err)
	}
}
