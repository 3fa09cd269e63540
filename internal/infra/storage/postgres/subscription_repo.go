package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
)

// SubscriptionRepo implements storage.SubscriptionRepository using PostgreSQL.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new PostgreSQL subscription repository.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

type subscriptionRow struct {
	AccountID            string         `db:"account_id"`
	Tier                 string         `db:"tier"`
	ScheduledDowngradeTo sql.NullString `db:"scheduled_downgrade_to"`
	CurrentPeriodEndsAt  time.Time      `db:"current_period_ends_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (s *subscriptionRow) toDomain() *domain.Subscription {
	sub := &domain.Subscription{
		AccountID:           s.AccountID,
		Tier:                domain.Tier(s.Tier),
		CurrentPeriodEndsAt: s.CurrentPeriodEndsAt,
		UpdatedAt:           s.UpdatedAt,
	}
	if s.ScheduledDowngradeTo.Valid {
		t := domain.Tier(s.ScheduledDowngradeTo.String)
		sub.ScheduledDowngradeTo = &t
	}
	return sub
}

// Get retrieves the subscription for an account.
func (r *SubscriptionRepo) Get(ctx context.Context, accountID string) (*domain.Subscription, error) {
	query := `
		SELECT account_id, tier, scheduled_downgrade_to, current_period_ends_at, updated_at
		FROM subscriptions
		WHERE account_id = $1
	`

	var row subscriptionRow
	err := r.db.GetContext(ctx, &row, query, accountID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or updates the subscription row.
func (r *SubscriptionRepo) Save(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (account_id, tier, scheduled_downgrade_to, current_period_ends_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (account_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			scheduled_downgrade_to = EXCLUDED.scheduled_downgrade_to,
			current_period_ends_at = EXCLUDED.current_period_ends_at,
			updated_at = now()
	`

	var scheduled sql.NullString
	if sub.ScheduledDowngradeTo != nil {
		scheduled = sql.NullString{String: string(*sub.ScheduledDowngradeTo), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		sub.AccountID,
		string(sub.Tier),
		scheduled,
		sub.CurrentPeriodEndsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}
