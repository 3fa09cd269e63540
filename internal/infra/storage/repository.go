package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
)

var (
	// ErrJobNotFound is returned when a job doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrSubscriptionNotFound is returned when a subscription doesn't exist
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// AccountTx is the atomic unit for one account's credit state. All
// reads inside it observe the locked balance row, and all writes become
// visible together or not at all. Implementations serialize concurrent
// AccountTx calls for the same account.
type AccountTx interface {
	// GetBalance reads the balance row, returning nil if absent.
	GetBalance(ctx context.Context) (*domain.Balance, error)

	// SaveBalance inserts or updates the balance row.
	SaveBalance(ctx context.Context, balance *domain.Balance) error

	// AppendEntry appends one immutable ledger entry.
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error
}

// BalanceRepository handles balance and ledger-entry storage.
type BalanceRepository interface {
	// WithAccountTx runs fn inside the account-scoped atomic unit.
	// Returning an error from fn rolls everything back.
	WithAccountTx(ctx context.Context, accountID string, fn func(tx AccountTx) error) error

	// Get reads the balance row without locking, returning nil if absent.
	Get(ctx context.Context, accountID string) (*domain.Balance, error)

	// ListAccountIDs returns every account with a balance row, for sweeps.
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// LedgerRepository provides read access to the append-only entry log.
type LedgerRepository interface {
	// ListByAccount returns the newest entries first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error)
}

// JobFilter narrows and pages a job listing.
type JobFilter struct {
	Statuses []domain.JobStatus
	Kind     domain.JobKind
	Limit    int
	Offset   int
}

// JobRepository handles job row storage.
type JobRepository interface {
	// Create inserts a new job row.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// GetForAccount retrieves a job scoped to an account.
	GetForAccount(ctx context.Context, jobID, accountID string) (*domain.Job, error)

	// UpdateStatus transitions a job's status, recording the error
	// message and completion time when given.
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errorMessage string, completedAt *time.Time) error

	// CommitResult marks a job completed with its output artifact.
	CommitResult(ctx context.Context, jobID, outputRef string, width, height int, completedAt time.Time) error

	// SetInputRef records the persisted input artifact for modify jobs.
	SetInputRef(ctx context.Context, jobID, inputRef string) error

	// CountByStatus counts an account's jobs in the given status.
	CountByStatus(ctx context.Context, accountID string, status domain.JobStatus) (int, error)

	// CountOlderThan counts jobs in the given status created before cutoff.
	CountOlderThan(ctx context.Context, status domain.JobStatus, cutoff time.Time) (int, error)

	// List returns a filtered page of an account's jobs plus the
	// unpaged total, newest first.
	List(ctx context.Context, accountID string, filter JobFilter) ([]*domain.Job, int64, error)
}

// SubscriptionRepository handles subscription row storage.
type SubscriptionRepository interface {
	// Get retrieves the subscription, returning ErrSubscriptionNotFound if absent.
	Get(ctx context.Context, accountID string) (*domain.Subscription, error)

	// Save inserts or updates the subscription row.
	Save(ctx context.Context, sub *domain.Subscription) error
}
