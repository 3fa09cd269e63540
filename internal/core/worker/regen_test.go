package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/infra/storage/memory"
	"github.com/vietddude/genledger/internal/ledger"
)

type failingBalanceRepo struct {
	storage.BalanceRepository
	listErr error
}

func (r *failingBalanceRepo) ListAccountIDs(ctx context.Context) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.BalanceRepository.ListAccountIDs(ctx)
}

func TestSweepRegeneratesAllAccounts(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mem := memory.NewMemoryStorage()
	balances := memory.NewBalanceRepo(mem)
	credits := ledger.NewService(
		balances,
		memory.NewLedgerRepo(mem),
		memory.NewSubscriptionRepo(mem),
		ledger.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	// Two drained accounts and one already at capacity.
	for _, acct := range []string{"a", "b", "c"} {
		if _, err := credits.GetBalance(ctx, acct); err != nil {
			t.Fatalf("GetBalance(%s): %v", acct, err)
		}
	}
	_, _ = credits.Consume(ctx, "a", 5, "test", "", nil)
	_, _ = credits.Consume(ctx, "b", 1, "test", "", nil)

	now = now.Add(ledger.DefaultRegenInterval)

	r := NewRegenerator(0, balances, credits)
	if err := r.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	infoA, _ := credits.GetBalance(ctx, "a")
	if infoA.Balance != 16 {
		t.Errorf("a balance = %d, want 16 (one interval, free yield 1)", infoA.Balance)
	}
	infoB, _ := credits.GetBalance(ctx, "b")
	if infoB.Balance != 20 {
		t.Errorf("b balance = %d, want refilled 20", infoB.Balance)
	}
	infoC, _ := credits.GetBalance(ctx, "c")
	if infoC.Balance != 20 {
		t.Errorf("c balance = %d, want untouched 20", infoC.Balance)
	}
}

func TestSweepReportsListFailure(t *testing.T) {
	mem := memory.NewMemoryStorage()
	balances := memory.NewBalanceRepo(mem)
	credits := ledger.NewService(balances, memory.NewLedgerRepo(mem), memory.NewSubscriptionRepo(mem))

	boom := errors.New("db down")
	failing := &failingBalanceRepo{BalanceRepository: balances, listErr: boom}

	r := NewRegenerator(time.Minute, failing, credits)
	if err := r.Sweep(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Sweep err = %v, want the listing failure", err)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	mem := memory.NewMemoryStorage()
	balances := memory.NewBalanceRepo(mem)
	credits := ledger.NewService(balances, memory.NewLedgerRepo(mem), memory.NewSubscriptionRepo(mem))

	r := NewRegenerator(10*time.Millisecond, balances, credits)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
