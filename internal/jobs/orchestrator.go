package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/core/tier"
	"github.com/vietddude/genledger/internal/infra/compute"
	"github.com/vietddude/genledger/internal/infra/objstore"
	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/ledger"
	"github.com/vietddude/genledger/internal/metrics"
)

// DefaultConcurrencyCap bounds an account's simultaneously processing jobs.
const DefaultConcurrencyCap = 3

// Emitter publishes job lifecycle events to downstream consumers.
type Emitter interface {
	PublishJobEvent(ctx context.Context, event *domain.JobEvent) error
}

// Config holds orchestrator settings.
type Config struct {
	// ConcurrencyCap is the per-account processing-job limit (default 3).
	ConcurrencyCap int
}

// Orchestrator admits metered generation jobs, drives their background
// pipelines and compensates failures through the credit ledger.
//
// Admission is synchronous: it reserves credits, creates the job row in
// processing and returns. The pipeline runs as a detached goroutine
// with no supervisor; any stage failure jumps to compensation
// (classify, mark failed, refund, mark refunded).
type Orchestrator struct {
	jobs    storage.JobRepository
	credits *ledger.Service
	compute compute.Client
	store   objstore.Store
	emitter Emitter
	cap     int
	now     func() time.Time
	log     *slog.Logger

	mu   sync.Mutex
	done map[string]chan struct{}
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a job orchestrator.
func NewOrchestrator(
	cfg Config,
	jobRepo storage.JobRepository,
	credits *ledger.Service,
	computeClient compute.Client,
	store objstore.Store,
	emitter Emitter,
	opts ...Option,
) *Orchestrator {
	limit := cfg.ConcurrencyCap
	if limit <= 0 {
		limit = DefaultConcurrencyCap
	}
	o := &Orchestrator{
		jobs:    jobRepo,
		credits: credits,
		compute: computeClient,
		store:   store,
		emitter: emitter,
		cap:     limit,
		now:     time.Now,
		log:     slog.Default().With("component", "orchestrator"),
		done:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AdmitParams describes one job admission.
type AdmitParams struct {
	AccountID string
	Kind      domain.JobKind
	Tier      domain.Tier
	Prompt    string
	Width     int
	Height    int
	// InputData is the caller-supplied source artifact for modify jobs.
	InputData []byte
	// InputRef points at an already-stored input artifact (reruns).
	InputRef string
}

// Admission is the synchronous result of Admit.
type Admission struct {
	JobID       string
	CreditsCost int64
}

// Admit reserves credits and creates the job, then launches the
// background pipeline without waiting for it. Either the whole
// admission succeeds and a processing row exists, or it fails and no
// row was created.
//
// The concurrency check is a count query outside the credit
// transaction: two admissions in the same instant can both pass it and
// momentarily exceed the cap. Known gap.
func (o *Orchestrator) Admit(ctx context.Context, params AdmitParams) (*Admission, error) {
	count, err := o.jobs.CountByStatus(ctx, params.AccountID, domain.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("count processing jobs: %w", err)
	}
	if count >= o.cap {
		metrics.AdmissionsRejected.WithLabelValues("concurrency").Inc()
		return nil, fmt.Errorf("%w: %d processing (limit %d)", ErrTooManyConcurrentJobs, count, o.cap)
	}

	// Opportunistic regeneration so due tokens count toward admission.
	if _, err := o.credits.Regenerate(ctx, params.AccountID); err != nil {
		o.log.Warn("Regeneration before admission failed", "account", params.AccountID, "error", err)
	}

	cost := tier.JobCost(params.Kind, params.Tier)
	if _, err := o.credits.Consume(ctx, params.AccountID, cost, "job_admission", "pending", nil); err != nil {
		if ledger.IsInsufficientBalance(err) {
			metrics.AdmissionsRejected.WithLabelValues("balance").Inc()
		}
		return nil, err
	}

	now := o.now()
	job := &domain.Job{
		ID:          uuid.NewString(),
		AccountID:   params.AccountID,
		Kind:        params.Kind,
		Tier:        params.Tier,
		CreditsCost: cost,
		Status:      domain.JobStatusProcessing,
		Prompt:      params.Prompt,
		CreatedAt:   now,
		StartedAt:   &now,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		// The reservation went through but no row exists; give the
		// credits back before reporting the failure.
		if _, refundErr := o.credits.Refund(ctx, params.AccountID, cost, "admission_failed", "admission_failed"); refundErr != nil {
			o.log.Error("Failed to refund after job create failure",
				"account", params.AccountID, "amount", cost, "error", refundErr)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.JobsAdmitted.WithLabelValues(string(params.Kind)).Inc()
	o.emit(ctx, domain.JobEventAdmitted, job, "")

	doneCh := make(chan struct{})
	o.mu.Lock()
	o.done[job.ID] = doneCh
	o.mu.Unlock()

	go func() {
		defer func() {
			// Release waiters first, then drop the registry entry so the
			// map stays bounded by in-flight pipelines.
			close(doneCh)
			o.mu.Lock()
			delete(o.done, job.ID)
			o.mu.Unlock()
		}()
		// The pipeline outlives the admission request.
		o.runPipeline(context.WithoutCancel(ctx), job, params)
	}()

	o.log.Info("Job admitted", "job", job.ID, "account", job.AccountID, "kind", job.Kind, "cost", cost)
	return &Admission{JobID: job.ID, CreditsCost: cost}, nil
}

// Wait returns a channel closed when the job's pipeline (including any
// compensation) has finished. Returns nil once the pipeline has been
// reaped, or for jobs without a live pipeline in this process.
func (o *Orchestrator) Wait(jobID string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done[jobID]
}

// CancelResult reports the credits returned by a cancellation.
type CancelResult struct {
	CreditsRefunded int64
}

// Cancel marks a processing job cancelled and refunds its cost. It does
// not interrupt an in-flight compute call: if the pipeline later
// completes, its final commit overwrites the cancelled row (last write
// wins).
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*CancelResult, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	// "pending" never persists, but accept it defensively.
	if job.Status != domain.JobStatusProcessing && job.Status != domain.JobStatus("pending") {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}

	now := o.now()
	if err := o.jobs.UpdateStatus(ctx, jobID, domain.JobStatusCancelled, "cancelled", &now); err != nil {
		return nil, fmt.Errorf("mark cancelled: %w", err)
	}

	if _, err := o.credits.Refund(ctx, job.AccountID, job.CreditsCost, jobID, "cancelled"); err != nil {
		metrics.CompensationFailures.Inc()
		o.log.Error("Refund after cancel failed", "job", jobID, "account", job.AccountID, "error", err)
		return nil, err
	}

	metrics.JobsFinished.WithLabelValues(string(job.Kind), "cancelled").Inc()
	o.emit(ctx, domain.JobEventCancelled, job, "")
	o.log.Info("Job cancelled", "job", jobID, "refunded", job.CreditsCost)
	return &CancelResult{CreditsRefunded: job.CreditsCost}, nil
}

// Rerun admits a fresh job with the original job's immutable
// parameters. For modify jobs the new pipeline re-fetches the original
// input artifact; a fetch failure there compensates the new job, not
// the original.
func (o *Orchestrator) Rerun(ctx context.Context, jobID string) (*Admission, error) {
	orig, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	params := AdmitParams{
		AccountID: orig.AccountID,
		Kind:      orig.Kind,
		Tier:      orig.Tier,
		Prompt:    orig.Prompt,
		Width:     orig.Width,
		Height:    orig.Height,
		InputRef:  orig.InputRef,
	}
	return o.Admit(ctx, params)
}

// GetJob retrieves a job, optionally scoped to an account.
func (o *Orchestrator) GetJob(ctx context.Context, jobID, accountID string) (*domain.Job, error) {
	var (
		job *domain.Job
		err error
	)
	if accountID != "" {
		job, err = o.jobs.GetForAccount(ctx, jobID, accountID)
	} else {
		job, err = o.jobs.Get(ctx, jobID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobPage is one page of a job listing.
type JobPage struct {
	Items   []*domain.Job
	Total   int64
	HasMore bool
}

// ListJobs returns a filtered page of an account's jobs, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, accountID string, filter storage.JobFilter) (*JobPage, error) {
	items, total, err := o.jobs.List(ctx, accountID, filter)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return &JobPage{
		Items:   items,
		Total:   total,
		HasMore: int64(filter.Offset+len(items)) < total,
	}, nil
}

func (o *Orchestrator) emit(ctx context.Context, eventType domain.JobEventType, job *domain.Job, errorCode string) {
	if o.emitter == nil {
		return
	}
	event := &domain.JobEvent{
		Type:        eventType,
		JobID:       job.ID,
		AccountID:   job.AccountID,
		Kind:        job.Kind,
		CreditsCost: job.CreditsCost,
		ErrorCode:   errorCode,
		Timestamp:   o.now(),
	}
	if err := o.emitter.PublishJobEvent(ctx, event); err != nil {
		o.log.Warn("Failed to publish job event", "job", job.ID, "type", eventType, "error", err)
	}
}
