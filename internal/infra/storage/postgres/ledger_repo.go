package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
)

// LedgerRepo implements storage.LedgerRepository using PostgreSQL.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new PostgreSQL ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

type entryRow struct {
	ID           string    `db:"id"`
	AccountID    string    `db:"account_id"`
	Amount       int64     `db:"amount"`
	Kind         string    `db:"kind"`
	Source       string    `db:"source"`
	SourceID     string    `db:"source_id"`
	BalanceAfter int64     `db:"balance_after"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
}

func (e *entryRow) toDomain() (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:           e.ID,
		AccountID:    e.AccountID,
		Amount:       e.Amount,
		Kind:         domain.EntryKind(e.Kind),
		Source:       e.Source,
		SourceID:     e.SourceID,
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
	if len(e.Metadata) > 0 {
		if err := json.Unmarshal(e.Metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}
	return entry, nil
}

// ListByAccount returns the newest entries first.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, account_id, amount, kind, source, source_id, balance_after, metadata, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]*domain.LedgerEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
