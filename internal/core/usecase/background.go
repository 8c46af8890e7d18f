package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// HandleJob executes one delivery of a background extraction job. It returns
// an ErrTemporary error when the delivery should be retried, nil when the job
// is settled, and any other error when the message must be dropped.
func (uc *DispatchUseCase) HandleJob(ctx context.Context, delivery domain.JobDelivery) error {
	job := delivery.Job
	doc, err := uc.repo.GetByID(ctx, job.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			slog.Warn("background_job_orphaned", "job_id", job.JobID, "document_id", job.DocumentID)
			return nil
		}
		return domain.WrapError(domain.ErrTemporary, "load document", err)
	}
	if doc.Status != domain.StatusProcessing || doc.RunSeq != job.RunSeq {
		if uc.process.observer != nil {
			uc.process.observer.StaleRunDropped()
		}
		slog.Info("background_job_superseded",
			"job_id", job.JobID,
			"document_id", doc.ID,
			"job_run_seq", job.RunSeq,
			"document_run_seq", doc.RunSeq,
			"status", string(doc.Status),
		)
		return nil
	}

	state := domain.JobState{
		JobID:      job.JobID,
		DocumentID: job.DocumentID,
		RunSeq:     job.RunSeq,
		Attempt:    delivery.Attempt,
		Status:     domain.JobRunning,
	}
	state.UpdatedAt = uc.now().UTC()
	uc.putJobState(ctx, state)

	ticket := domain.RunTicket{DocumentID: doc.ID, RunSeq: job.RunSeq, Mode: domain.ModeBackground, JobID: job.JobID}
	started := uc.now()
	report, runErr := uc.process.Execute(ctx, doc)
	elapsed := uc.now().Sub(started)

	if runErr == nil {
		state.Status = domain.JobCompleted
		state.Report = report
		state.UpdatedAt = uc.now().UTC()
		uc.putJobState(ctx, state)
		return uc.finishBackground(ctx, ticket, report, nil, elapsed)
	}

	if !permanentFailure(runErr) && !delivery.Final() {
		state.Status = domain.JobQueued
		state.Error = runErr.Error()
		state.UpdatedAt = uc.now().UTC()
		uc.putJobState(ctx, state)
		if uc.process.observer != nil {
			uc.process.observer.JobRetried()
		}
		slog.Warn("background_job_retry",
			"job_id", job.JobID,
			"document_id", doc.ID,
			"attempt", delivery.Attempt,
			"max_attempts", delivery.MaxAttempts,
			"error", runErr.Error(),
		)
		return domain.WrapError(domain.ErrTemporary, "execute extraction job", runErr)
	}

	state.Status = domain.JobFailed
	state.Error = runErr.Error()
	state.UpdatedAt = uc.now().UTC()
	uc.putJobState(ctx, state)
	slog.Error("background_job_failed",
		"job_id", job.JobID,
		"document_id", doc.ID,
		"attempt", delivery.Attempt,
		"error", runErr.Error(),
	)
	if err := uc.finishBackground(ctx, ticket, nil, runErr, elapsed); err != nil {
		return err
	}
	return fmt.Errorf("extraction job %s failed: %w", job.JobID, runErr)
}

// finishBackground stores the run outcome. A stale ticket settles the job and
// storage failures are retried.
func (uc *DispatchUseCase) finishBackground(
	ctx context.Context,
	ticket domain.RunTicket,
	report *domain.ExtractionReport,
	runErr error,
	elapsed time.Duration,
) error {
	_, err := uc.process.Finish(ctx, ticket, report, runErr, elapsed)
	switch {
	case err == nil, domain.IsKind(err, domain.ErrStaleRun):
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "finish extraction job", err)
	}
}

func permanentFailure(err error) bool {
	return domain.IsKind(err, domain.ErrDocumentFileMissing) ||
		domain.IsKind(err, domain.ErrInvalidInput) ||
		domain.IsKind(err, domain.ErrTemplateNotFound) ||
		domain.IsKind(err, domain.ErrDocumentNotFound)
}
