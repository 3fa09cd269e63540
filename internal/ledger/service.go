package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/core/tier"
	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/metrics"
)

// DefaultRegenInterval is the fixed regeneration interval length.
const DefaultRegenInterval = 15 * time.Minute

// Service owns per-account credit balances and the append-only entry
// log. Every mutation runs inside the storage layer's account-scoped
// atomic unit, so two concurrent operations on the same account can
// never both act on a stale balance.
type Service struct {
	balances      storage.BalanceRepository
	entries       storage.LedgerRepository
	subs          storage.SubscriptionRepository
	regenInterval time.Duration
	now           func() time.Time
	log           *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithRegenInterval overrides the regeneration interval (tests).
func WithRegenInterval(d time.Duration) Option {
	return func(s *Service) { s.regenInterval = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a credit ledger service.
func NewService(
	balances storage.BalanceRepository,
	entries storage.LedgerRepository,
	subs storage.SubscriptionRepository,
	opts ...Option,
) *Service {
	s := &Service{
		balances:      balances,
		entries:       entries,
		subs:          subs,
		regenInterval: DefaultRegenInterval,
		now:           time.Now,
		log:           slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BalanceInfo is the read view of an account's credit state.
type BalanceInfo struct {
	AccountID          string
	Balance            int64
	Tier               domain.Tier
	Capacity           int64
	LastRegenerationAt time.Time
}

// UpgradeResult reports the outcome of a tier upgrade.
type UpgradeResult struct {
	PreviousTier  domain.Tier
	NewTier       domain.Tier
	TokensGranted int64
	NewBalance    int64
}

// loadOrCreate reads the balance row inside tx, lazily creating it at
// the catalog's floor tier (with a full starting balance) if absent.
func (s *Service) loadOrCreate(ctx context.Context, tx storage.AccountTx, accountID string) (*domain.Balance, error) {
	b, err := tx.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}

	spec := tier.Lookup(tier.Floor())
	b = &domain.Balance{
		AccountID:          accountID,
		Balance:            spec.Capacity,
		Tier:               spec.Tier,
		LastRegenerationAt: s.now(),
	}
	if err := tx.SaveBalance(ctx, b); err != nil {
		return nil, err
	}
	s.log.Debug("Created balance row", "account", accountID, "tier", b.Tier, "balance", b.Balance)
	return b, nil
}

// GetBalance returns the account's current credit state, creating the
// balance row at the floor tier on first touch.
func (s *Service) GetBalance(ctx context.Context, accountID string) (*BalanceInfo, error) {
	var info *BalanceInfo
	err := s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		info = &BalanceInfo{
			AccountID:          b.AccountID,
			Balance:            b.Balance,
			Tier:               b.Tier,
			Capacity:           tier.Capacity(b.Tier),
			LastRegenerationAt: b.LastRegenerationAt,
		}
		return nil
	})
	if err != nil {
		return nil, storageFault(err)
	}
	return info, nil
}

// Consume atomically spends amount credits. Fails with
// *InsufficientBalanceError when the balance cannot cover it; the
// balance never goes negative.
func (s *Service) Consume(ctx context.Context, accountID string, amount int64, source, sourceID string, metadata map[string]string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var after int64
	err := s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if b.Balance < amount {
			return &InsufficientBalanceError{AccountID: accountID, Required: amount, Available: b.Balance}
		}

		b.Balance -= amount
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       -amount,
			Kind:         domain.EntrySpend,
			Source:       source,
			SourceID:     sourceID,
			BalanceAfter: b.Balance,
			Metadata:     metadata,
			CreatedAt:    s.now(),
		}); err != nil {
			return err
		}
		after = b.Balance
		return nil
	})
	if err != nil {
		if validationError(err) {
			return 0, err
		}
		return 0, storageFault(err)
	}

	metrics.CreditsConsumed.Add(float64(amount))
	s.log.Debug("Consumed credits", "account", accountID, "amount", amount, "balance", after)
	return after, nil
}

// Grant atomically adds amount credits. Regeneration grants are clamped
// to the tier capacity (excess is dropped, not banked); every other
// kind is uncapped.
func (s *Service) Grant(ctx context.Context, accountID string, amount int64, kind domain.EntryKind, source, sourceID string, metadata map[string]string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var after int64
	err := s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		granted := amount
		if kind == domain.EntryEarnRegeneration {
			capacity := tier.Capacity(b.Tier)
			if b.Balance+granted > capacity {
				granted = capacity - b.Balance
			}
			if granted < 0 {
				granted = 0
			}
		}

		b.Balance += granted
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		if granted == 0 {
			// Nothing actually added; keep the chain free of zero rows.
			after = b.Balance
			return nil
		}
		if err := tx.AppendEntry(ctx, &domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       granted,
			Kind:         kind,
			Source:       source,
			SourceID:     sourceID,
			BalanceAfter: b.Balance,
			Metadata:     metadata,
			CreatedAt:    s.now(),
		}); err != nil {
			return err
		}
		after = b.Balance
		return nil
	})
	if err != nil {
		if validationError(err) {
			return 0, err
		}
		return 0, storageFault(err)
	}
	return after, nil
}

// Refund grants amount back with kind REFUND, correlated to the job
// that originally spent it.
func (s *Service) Refund(ctx context.Context, accountID string, amount int64, sourceID, reason string) (int64, error) {
	var metadata map[string]string
	if reason != "" {
		metadata = map[string]string{"reason": reason}
	}
	after, err := s.Grant(ctx, accountID, amount, domain.EntryRefund, "refund", sourceID, metadata)
	if err != nil {
		return 0, err
	}
	metrics.CreditsRefunded.Add(float64(amount))
	return after, nil
}

// Regenerate adds tokens for whole elapsed intervals since the last
// regeneration, clamped to the tier capacity. Safe to call redundantly:
// it is a no-op returning 0 when nothing is due, and advances
// lastRegenerationAt only when tokens were actually added.
func (s *Service) Regenerate(ctx context.Context, accountID string) (int64, error) {
	var added int64
	err := s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		spec := tier.Lookup(b.Tier)
		if b.Balance >= spec.Capacity {
			return nil
		}

		intervals := int64(s.now().Sub(b.LastRegenerationAt) / s.regenInterval)
		if intervals <= 0 {
			return nil
		}

		tokens := intervals * spec.RegenPerInterval
		if room := spec.Capacity - b.Balance; tokens > room {
			tokens = room
		}
		if tokens <= 0 {
			return nil
		}

		b.Balance += tokens
		// Advance by whole intervals so the remainder keeps accruing.
		b.LastRegenerationAt = b.LastRegenerationAt.Add(time.Duration(intervals) * s.regenInterval)
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       tokens,
			Kind:         domain.EntryEarnRegeneration,
			Source:       "regeneration",
			BalanceAfter: b.Balance,
			CreatedAt:    s.now(),
		}); err != nil {
			return err
		}
		added = tokens
		return nil
	})
	if err != nil {
		return 0, storageFault(err)
	}

	if added > 0 {
		metrics.CreditsRegenerated.Add(float64(added))
		s.log.Debug("Regenerated credits", "account", accountID, "tokens", added)
	}
	return added, nil
}

// UpgradeTier moves the account to a strictly higher tier and resets
// the balance to the target tier's full capacity. The refill is logged
// as an EARN_PURCHASE entry.
func (s *Service) UpgradeTier(ctx context.Context, accountID string, target domain.Tier) (*UpgradeResult, error) {
	if !tier.Known(target) {
		return nil, ErrUnknownTier
	}

	var result *UpgradeResult
	err := s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !tier.Above(target, b.Tier) {
			return ErrInvalidUpgradePath
		}

		previous := b.Tier
		capacity := tier.Capacity(target)
		granted := capacity - b.Balance

		b.Tier = target
		b.Balance = capacity
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Amount:       granted,
			Kind:         domain.EntryEarnPurchase,
			Source:       "tier_upgrade",
			SourceID:     string(target),
			BalanceAfter: b.Balance,
			Metadata:     map[string]string{"from": string(previous), "to": string(target)},
			CreatedAt:    s.now(),
		}); err != nil {
			return err
		}

		result = &UpgradeResult{
			PreviousTier:  previous,
			NewTier:       target,
			TokensGranted: granted,
			NewBalance:    b.Balance,
		}
		return nil
	})
	if err != nil {
		if validationError(err) {
			return nil, err
		}
		return nil, storageFault(err)
	}

	// Keep the subscription row in step; an upgrade supersedes any
	// pending downgrade.
	if err := s.subs.Save(ctx, &domain.Subscription{
		AccountID:           accountID,
		Tier:                target,
		CurrentPeriodEndsAt: s.now().AddDate(0, 1, 0),
	}); err != nil {
		s.log.Warn("Failed to sync subscription after upgrade", "account", accountID, "error", err)
	}

	s.log.Info("Tier upgraded", "account", accountID, "from", result.PreviousTier, "to", result.NewTier)
	return result, nil
}

// ScheduleDowngrade records a strictly lower target tier to be applied
// by the billing-cycle trigger. Balance and tier are untouched until
// ApplyScheduledDowngrade runs.
func (s *Service) ScheduleDowngrade(ctx context.Context, accountID string, target domain.Tier) error {
	if !tier.Known(target) {
		return ErrUnknownTier
	}

	info, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if !tier.Below(target, info.Tier) {
		return ErrInvalidDowngradePath
	}

	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		sub = &domain.Subscription{
			AccountID:           accountID,
			Tier:                info.Tier,
			CurrentPeriodEndsAt: s.now().AddDate(0, 1, 0),
		}
	}
	sub.Tier = info.Tier
	sub.ScheduledDowngradeTo = &target
	if err := s.subs.Save(ctx, sub); err != nil {
		return storageFault(err)
	}

	s.log.Info("Downgrade scheduled", "account", accountID, "from", info.Tier, "to", target)
	return nil
}

// ApplyScheduledDowngrade sets the tier to the pending target with no
// token grant and clears the pending field. No-op when nothing is
// pending. Invoked by the external billing trigger at period
// boundaries.
func (s *Service) ApplyScheduledDowngrade(ctx context.Context, accountID string) error {
	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		if err == storage.ErrSubscriptionNotFound {
			return nil
		}
		return storageFault(err)
	}
	if sub.ScheduledDowngradeTo == nil {
		return nil
	}
	target := *sub.ScheduledDowngradeTo

	err = s.balances.WithAccountTx(ctx, accountID, func(tx storage.AccountTx) error {
		b, err := s.loadOrCreate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		b.Tier = target
		return tx.SaveBalance(ctx, b)
	})
	if err != nil {
		return storageFault(err)
	}

	sub.Tier = target
	sub.ScheduledDowngradeTo = nil
	if err := s.subs.Save(ctx, sub); err != nil {
		return storageFault(err)
	}

	s.log.Info("Downgrade applied", "account", accountID, "tier", target)
	return nil
}

// History returns the newest ledger entries for an account.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error) {
	entries, err := s.entries.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, storageFault(err)
	}
	return entries, nil
}
