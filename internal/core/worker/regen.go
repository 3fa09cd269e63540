package worker

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/ledger"
)

// Regenerator periodically sweeps all accounts and applies time-based
// credit regeneration. Each account regenerates inside its own atomic
// unit, so one account's failure never aborts the sweep.
type Regenerator struct {
	interval time.Duration
	balances storage.BalanceRepository
	credits  *ledger.Service
	log      *slog.Logger
}

// NewRegenerator creates a new regeneration sweep worker.
func NewRegenerator(
	interval time.Duration,
	balances storage.BalanceRepository,
	credits *ledger.Service,
) *Regenerator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Regenerator{
		interval: interval,
		balances: balances,
		credits:  credits,
		log:      slog.Default().With("component", "regenerator"),
	}
}

// Start runs the sweep loop until ctx is done.
func (r *Regenerator) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial sweep
	r.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep regenerates every account once. Regeneration is idempotent, so
// overlapping sweeps are safe. Returns the combined per-account errors.
func (r *Regenerator) Sweep(ctx context.Context) error {
	accounts, err := r.balances.ListAccountIDs(ctx)
	if err != nil {
		r.log.Error("Sweep: failed to list accounts", "error", err)
		return err
	}

	var swept int
	var added int64
	var errs error
	for _, accountID := range accounts {
		tokens, err := r.credits.Regenerate(ctx, accountID)
		if err != nil {
			r.log.Warn("Sweep: regeneration failed", "account", accountID, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		swept++
		added += tokens
	}

	if added > 0 {
		r.log.Info("Regeneration sweep done", "accounts", swept, "tokens_added", added)
	} else {
		r.log.Debug("Regeneration sweep done", "accounts", swept)
	}
	return errs
}
