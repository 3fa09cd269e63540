package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/storage"
)

// JobRepo implements storage.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

type jobRow struct {
	ID           string       `db:"id"`
	AccountID    string       `db:"account_id"`
	Kind         string       `db:"kind"`
	Tier         string       `db:"tier"`
	CreditsCost  int64        `db:"credits_cost"`
	Status       string       `db:"status"`
	Prompt       string       `db:"prompt"`
	InputRef     string       `db:"input_ref"`
	OutputRef    string       `db:"output_ref"`
	Width        int          `db:"width"`
	Height       int          `db:"height"`
	ErrorMessage string       `db:"error_message"`
	CreatedAt    time.Time    `db:"created_at"`
	StartedAt    sql.NullTime `db:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
}

func (j *jobRow) toDomain() *domain.Job {
	job := &domain.Job{
		ID:           j.ID,
		AccountID:    j.AccountID,
		Kind:         domain.JobKind(j.Kind),
		Tier:         domain.Tier(j.Tier),
		CreditsCost:  j.CreditsCost,
		Status:       domain.JobStatus(j.Status),
		Prompt:       j.Prompt,
		InputRef:     j.InputRef,
		OutputRef:    j.OutputRef,
		Width:        j.Width,
		Height:       j.Height,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
	}
	if j.StartedAt.Valid {
		t := j.StartedAt.Time
		job.StartedAt = &t
	}
	if j.CompletedAt.Valid {
		t := j.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job
}

const jobColumns = `id, account_id, kind, tier, credits_cost, status, prompt,
		input_ref, output_ref, width, height, error_message, created_at, started_at, completed_at`

// Create inserts a new job row.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, account_id, kind, tier, credits_cost, status, prompt, input_ref, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var startedAt sql.NullTime
	if job.StartedAt != nil {
		startedAt = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.AccountID,
		string(job.Kind),
		string(job.Tier),
		job.CreditsCost,
		string(job.Status),
		job.Prompt,
		job.InputRef,
		job.CreatedAt,
		startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, jobID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

// GetForAccount retrieves a job scoped to an account.
func (r *JobRepo) GetForAccount(ctx context.Context, jobID, accountID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND account_id = $2`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, jobID, accountID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateStatus transitions a job's status.
func (r *JobRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errorMessage string, completedAt *time.Time) error {
	query := `
		UPDATE jobs SET
			status = $2,
			error_message = CASE WHEN $3 = '' THEN error_message ELSE $3 END,
			completed_at = COALESCE($4, completed_at)
		WHERE id = $1
	`

	var completed sql.NullTime
	if completedAt != nil {
		completed = sql.NullTime{Time: *completedAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, jobID, string(status), errorMessage, completed)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// CommitResult marks a job completed with its output artifact.
func (r *JobRepo) CommitResult(ctx context.Context, jobID, outputRef string, width, height int, completedAt time.Time) error {
	query := `
		UPDATE jobs SET
			status = $2,
			output_ref = $3,
			width = $4,
			height = $5,
			completed_at = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		jobID,
		string(domain.JobStatusCompleted),
		outputRef,
		width,
		height,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to commit job result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// SetInputRef records the persisted input artifact for modify jobs.
func (r *JobRepo) SetInputRef(ctx context.Context, jobID, inputRef string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE jobs SET input_ref = $2 WHERE id = $1`, jobID, inputRef)
	if err != nil {
		return fmt.Errorf("failed to set input ref: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// CountByStatus counts an account's jobs in the given status.
func (r *JobRepo) CountByStatus(ctx context.Context, accountID string, status domain.JobStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM jobs WHERE account_id = $1 AND status = $2`,
		accountID, string(status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// CountOlderThan counts jobs in the given status created before cutoff.
func (r *JobRepo) CountOlderThan(ctx context.Context, status domain.JobStatus, cutoff time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM jobs WHERE status = $1 AND created_at < $2`,
		string(status), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale jobs: %w", err)
	}
	return count, nil
}

// List returns a filtered page of an account's jobs plus the unpaged total.
func (r *JobRepo) List(ctx context.Context, accountID string, filter storage.JobFilter) ([]*domain.Job, int64, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	where := `WHERE account_id = $1
		AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		AND ($3 = '' OR kind = $3)`

	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM jobs `+where,
		accountID, pq.Array(statuses), string(filter.Kind),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5`

	var rows []jobRow
	err = r.db.SelectContext(ctx, &rows, query,
		accountID, pq.Array(statuses), string(filter.Kind), limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, total, nil
}
