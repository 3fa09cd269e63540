package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
)

// BalanceRepo implements storage.BalanceRepository using PostgreSQL.
// Account-scoped atomicity comes from SELECT ... FOR UPDATE on the
// balance row inside one transaction: concurrent mutations to the same
// account serialize on the row lock, different accounts never contend.
type BalanceRepo struct {
	db *DB
}

// NewBalanceRepo creates a new PostgreSQL balance repository.
func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

type balanceRow struct {
	AccountID          string    `db:"account_id"`
	Balance            int64     `db:"balance"`
	Tier               string    `db:"tier"`
	LastRegenerationAt time.Time `db:"last_regeneration_at"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (b *balanceRow) toDomain() *domain.Balance {
	return &domain.Balance{
		AccountID:          b.AccountID,
		Balance:            b.Balance,
		Tier:               domain.Tier(b.Tier),
		LastRegenerationAt: b.LastRegenerationAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

type pgAccountTx struct {
	tx        *sqlx.Tx
	accountID string
}

func (t *pgAccountTx) GetBalance(ctx context.Context) (*domain.Balance, error) {
	query := `
		SELECT account_id, balance, tier, last_regeneration_at, created_at, updated_at
		FROM balances
		WHERE account_id = $1
		FOR UPDATE
	`

	var row balanceRow
	err := t.tx.GetContext(ctx, &row, query, t.accountID)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return row.toDomain(), nil
}

func (t *pgAccountTx) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	query := `
		INSERT INTO balances (account_id, balance, tier, last_regeneration_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (account_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			tier = EXCLUDED.tier,
			last_regeneration_at = EXCLUDED.last_regeneration_at,
			updated_at = now()
	`

	_, err := t.tx.ExecContext(ctx, query,
		balance.AccountID,
		balance.Balance,
		string(balance.Tier),
		balance.LastRegenerationAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (t *pgAccountTx) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal entry metadata: %w", err)
		}
	}

	query := `
		INSERT INTO ledger_entries (id, account_id, amount, kind, source, source_id, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		string(entry.Kind),
		entry.Source,
		entry.SourceID,
		entry.BalanceAfter,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// WithAccountTx runs fn inside a transaction holding the account's row lock.
func (r *BalanceRepo) WithAccountTx(ctx context.Context, accountID string, fn func(tx storage.AccountTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgAccountTx{tx: tx, accountID: accountID}); err != nil {
		return err
	}
	return tx.Commit()
}

// Get reads the balance row without locking.
func (r *BalanceRepo) Get(ctx context.Context, accountID string) (*domain.Balance, error) {
	query := `
		SELECT account_id, balance, tier, last_regeneration_at, created_at, updated_at
		FROM balances
		WHERE account_id = $1
	`

	var row balanceRow
	err := r.db.GetContext(ctx, &row, query, accountID)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return row.toDomain(), nil
}

// ListAccountIDs returns every account with a balance row.
func (r *BalanceRepo) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT account_id FROM balances ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}
