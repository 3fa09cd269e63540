package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
)

// MemoryStorage backs all repositories with in-process maps. Used by
// tests and local runs without a database.
type MemoryStorage struct {
	balances  map[string]*domain.Balance
	entries   map[string][]*domain.LedgerEntry
	jobs      map[string]*domain.Job
	subs      map[string]*domain.Subscription
	accountMu map[string]*sync.Mutex
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		balances:  make(map[string]*domain.Balance),
		entries:   make(map[string][]*domain.LedgerEntry),
		jobs:      make(map[string]*domain.Job),
		subs:      make(map[string]*domain.Subscription),
		accountMu: make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing one account's credit
// mutations, creating it on first use.
func (s *MemoryStorage) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.accountMu[accountID]
	if !ok {
		m = &sync.Mutex{}
		s.accountMu[accountID] = m
	}
	return m
}

// -----------------------------------------------------------------------------
// Balance Repository
// -----------------------------------------------------------------------------

type BalanceRepo struct {
	store *MemoryStorage
}

func NewBalanceRepo(store *MemoryStorage) *BalanceRepo {
	return &BalanceRepo{store: store}
}

type accountTx struct {
	store     *MemoryStorage
	accountID string

	// staged writes, applied on commit
	balance *domain.Balance
	appends []*domain.LedgerEntry
}

func (t *accountTx) GetBalance(ctx context.Context) (*domain.Balance, error) {
	if t.balance != nil {
		cp := *t.balance
		return &cp, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.balances[t.accountID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (t *accountTx) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	cp := *balance
	t.balance = &cp
	return nil
}

func (t *accountTx) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	cp := *entry
	t.appends = append(t.appends, &cp)
	return nil
}

func (r *BalanceRepo) WithAccountTx(ctx context.Context, accountID string, fn func(tx storage.AccountTx) error) error {
	lock := r.store.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	tx := &accountTx{store: r.store, accountID: accountID}
	if err := fn(tx); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if tx.balance != nil {
		r.store.balances[accountID] = tx.balance
	}
	r.store.entries[accountID] = append(r.store.entries[accountID], tx.appends...)
	return nil
}

func (r *BalanceRepo) Get(ctx context.Context, accountID string) (*domain.Balance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.balances[accountID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *BalanceRepo) ListAccountIDs(ctx context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := make([]string, 0, len(r.store.balances))
	for id := range r.store.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// -----------------------------------------------------------------------------
// Ledger Repository
// -----------------------------------------------------------------------------

type LedgerRepo struct {
	store *MemoryStorage
}

func NewLedgerRepo(store *MemoryStorage) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := r.store.entries[accountID]
	out := make([]*domain.LedgerEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *MemoryStorage
}

func NewJobRepo(store *MemoryStorage) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *job
	r.store.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	j, ok := r.store.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepo) GetForAccount(ctx context.Context, jobID, accountID string) (*domain.Job, error) {
	j, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.AccountID != accountID {
		return nil, storage.ErrJobNotFound
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errorMessage string, completedAt *time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	j.Status = status
	if errorMessage != "" {
		j.ErrorMessage = errorMessage
	}
	if completedAt != nil {
		t := *completedAt
		j.CompletedAt = &t
	}
	return nil
}

func (r *JobRepo) CommitResult(ctx context.Context, jobID, outputRef string, width, height int, completedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	j.Status = domain.JobStatusCompleted
	j.OutputRef = outputRef
	j.Width = width
	j.Height = height
	j.CompletedAt = &completedAt
	return nil
}

func (r *JobRepo) SetInputRef(ctx context.Context, jobID, inputRef string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	j.InputRef = inputRef
	return nil
}

func (r *JobRepo) CountByStatus(ctx context.Context, accountID string, status domain.JobStatus) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, j := range r.store.jobs {
		if j.AccountID == accountID && j.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *JobRepo) CountOlderThan(ctx context.Context, status domain.JobStatus, cutoff time.Time) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, j := range r.store.jobs {
		if j.Status == status && j.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *JobRepo) List(ctx context.Context, accountID string, filter storage.JobFilter) ([]*domain.Job, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*domain.Job
	for _, j := range r.store.jobs {
		if j.AccountID != accountID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, j.Status) {
			continue
		}
		if filter.Kind != "" && j.Kind != filter.Kind {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	// Newest first; break creation-time ties by ID for stable pages.
	sort.Slice(matched, func(i, k int) bool {
		if matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
			return strings.Compare(matched[i].ID, matched[k].ID) > 0
		}
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func containsStatus(statuses []domain.JobStatus, s domain.JobStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Subscription Repository
// -----------------------------------------------------------------------------

type SubscriptionRepo struct {
	store *MemoryStorage
}

func NewSubscriptionRepo(store *MemoryStorage) *SubscriptionRepo {
	return &SubscriptionRepo{store: store}
}

func (r *SubscriptionRepo) Get(ctx context.Context, accountID string) (*domain.Subscription, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.subs[accountID]
	if !ok {
		return nil, storage.ErrSubscriptionNotFound
	}
	cp := *s
	if s.ScheduledDowngradeTo != nil {
		t := *s.ScheduledDowngradeTo
		cp.ScheduledDowngradeTo = &t
	}
	return &cp, nil
}

func (r *SubscriptionRepo) Save(ctx context.Context, sub *domain.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *sub
	if sub.ScheduledDowngradeTo != nil {
		t := *sub.ScheduledDowngradeTo
		cp.ScheduledDowngradeTo = &t
	}
	r.store.subs[sub.AccountID] = &cp
	return nil
}
