package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/genledger/internal/core/domain"
	"github.com/vietddude/genledger/internal/infra/compute"
	"github.com/vietddude/genledger/internal/infra/imagemeta"
	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/jobs/classify"
	"github.com/vietddude/genledger/internal/metrics"
)

// runPipeline drives one job's background stages sequentially. Any
// stage failure jumps to compensation. There is no timeout here: the
// compute client enforces its own and surfaces it as a classified
// failure.
func (o *Orchestrator) runPipeline(ctx context.Context, job *domain.Job, params AdmitParams) {
	input := params.InputData

	if job.Kind == domain.JobKindModify {
		if len(input) == 0 && params.InputRef == "" {
			// Nothing to modify: the source row never got an input
			// artifact (it failed before persisting one).
			o.fail(ctx, job.ID, classify.NewError(classify.CodeInvalidInput,
				errors.New("modify job has no input artifact")))
			return
		}
		// Rerun path: re-fetch the original input artifact. A failure
		// here compensates this job, not the one it was cloned from.
		if len(input) == 0 && params.InputRef != "" {
			fetched, err := timedStage("fetch_input", func() ([]byte, error) {
				return o.store.Fetch(ctx, params.InputRef)
			})
			if err != nil {
				o.fail(ctx, job.ID, err)
				return
			}
			input = fetched
			if err := o.jobs.SetInputRef(ctx, job.ID, params.InputRef); err != nil {
				o.fail(ctx, job.ID, err)
				return
			}
		} else {
			// Persist the caller-supplied input for audit and rerun.
			inputRef, err := timedStage("persist_input", func() (string, error) {
				return o.store.Upload(ctx, artifactKey(job.ID, "input"), input, "application/octet-stream")
			})
			if err != nil {
				o.fail(ctx, job.ID, classify.NewError(classify.CodeStorageUpload, err))
				return
			}
			if err := o.jobs.SetInputRef(ctx, job.ID, inputRef); err != nil {
				o.fail(ctx, job.ID, err)
				return
			}
		}
	}

	computeParams := compute.Params{
		Prompt:    params.Prompt,
		Width:     params.Width,
		Height:    params.Height,
		InputData: input,
	}

	var result []byte
	var err error
	switch job.Kind {
	case domain.JobKindModify:
		result, err = timedStage("compute", func() ([]byte, error) {
			return o.compute.Modify(ctx, computeParams)
		})
	default:
		result, err = timedStage("compute", func() ([]byte, error) {
			return o.compute.Generate(ctx, computeParams)
		})
	}
	if err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	meta, err := timedStage("inspect", func() (imagemeta.Meta, error) {
		return imagemeta.Inspect(result)
	})
	if err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	outputRef, err := timedStage("upload", func() (string, error) {
		contentType := "application/octet-stream"
		if meta.Format != "" {
			contentType = "image/" + meta.Format
		}
		return o.store.Upload(ctx, artifactKey(job.ID, "output"), result, contentType)
	})
	if err != nil {
		o.fail(ctx, job.ID, classify.NewError(classify.CodeStorageUpload, err))
		return
	}

	// Last write wins: a concurrent cancel can be overwritten here.
	if err := o.jobs.CommitResult(ctx, job.ID, outputRef, meta.Width, meta.Height, o.now()); err != nil {
		o.fail(ctx, job.ID, err)
		return
	}

	metrics.JobsFinished.WithLabelValues(string(job.Kind), "completed").Inc()
	o.emit(ctx, domain.JobEventCompleted, job, "")
	o.log.Info("Job completed", "job", job.ID, "output", outputRef,
		"width", meta.Width, "height", meta.Height)
}

// fail runs compensation: classify, mark failed, refund, mark
// refunded. Errors raised during compensation itself are not retried;
// they are logged for an operator and the job stays in whatever status
// it last reached.
func (o *Orchestrator) fail(ctx context.Context, jobID string, rawErr error) {
	classified := classify.Classify(failureFrom(rawErr))
	o.log.Warn("Job pipeline failed", "job", jobID,
		"code", classified.Code, "retryable", classified.Retryable, "error", rawErr)

	now := o.now()
	if err := o.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, classified.Message, &now); err != nil {
		metrics.CompensationFailures.Inc()
		o.log.Error("Compensation: failed to mark job failed", "job", jobID, "error", err)
		return
	}

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			// Row vanished: skip the refund, log only.
			o.log.Error("Compensation: job row missing, skipping refund", "job", jobID)
			return
		}
		metrics.CompensationFailures.Inc()
		o.log.Error("Compensation: failed to load job for refund", "job", jobID, "error", err)
		return
	}

	metrics.JobsFinished.WithLabelValues(string(job.Kind), "failed").Inc()
	o.emit(ctx, domain.JobEventFailed, job, string(classified.Code))

	if _, err := o.credits.Refund(ctx, job.AccountID, job.CreditsCost, jobID, string(classified.Code)); err != nil {
		metrics.CompensationFailures.Inc()
		o.log.Error("Compensation: refund failed, job left in failed state",
			"job", jobID, "account", job.AccountID, "amount", job.CreditsCost, "error", err)
		return
	}

	if err := o.jobs.UpdateStatus(ctx, jobID, domain.JobStatusRefunded, "", nil); err != nil {
		metrics.CompensationFailures.Inc()
		o.log.Error("Compensation: failed to mark job refunded", "job", jobID, "error", err)
		return
	}

	o.emit(ctx, domain.JobEventRefunded, job, string(classified.Code))
	o.log.Info("Job compensated", "job", jobID, "refunded", job.CreditsCost, "code", classified.Code)
}

// failureFrom shapes an arbitrary error for the classifier boundary.
func failureFrom(err error) *classify.Failure {
	if err == nil {
		return nil
	}
	var apiErr *compute.APIError
	if errors.As(err, &apiErr) {
		return &classify.Failure{
			Code:       apiErr.Code,
			HTTPStatus: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return &classify.Failure{Message: err.Error(), Err: err}
}

// timedStage records stage latency around fn.
func timedStage[T any](stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	metrics.PipelineStageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return result, err
}

func artifactKey(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}
