package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

const mebibyte = 1 << 20

type DispatchConfig struct {
	// SyncMaxFileBytes is the largest file processed inline.
	SyncMaxFileBytes int64
	MaxAttempts      int
	MinEstimate      time.Duration
	EstimatePerMiB   time.Duration
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		SyncMaxFileBytes: 5 * mebibyte,
		MaxAttempts:      3,
		MinEstimate:      10 * time.Second,
		EstimatePerMiB:   2 * time.Second,
	}
}

// DispatchUseCase owns the per-document processing state machine:
// uploaded -> processing -> completed|error.
type DispatchUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.JobQueue
	jobs     ports.JobStateStore
	process  *ProcessDocumentUseCase
	cfg      DispatchConfig
	now      func() time.Time
	newJobID func() string
}

func NewDispatchUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	jobs ports.JobStateStore,
	process *ProcessDocumentUseCase,
	cfg DispatchConfig,
) *DispatchUseCase {
	if cfg.SyncMaxFileBytes <= 0 {
		cfg.SyncMaxFileBytes = DefaultDispatchConfig().SyncMaxFileBytes
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultDispatchConfig().MaxAttempts
	}
	return &DispatchUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		jobs:     jobs,
		process:  process,
		cfg:      cfg,
		now:      time.Now,
		newJobID: uuid.NewString,
	}
}

// Dispatch starts a run for a document that is not already processing.
func (uc *DispatchUseCase) Dispatch(ctx context.Context, documentID string, forceBackground bool) (*domain.DispatchResult, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if !doc.Status.Reprocessable() {
		return nil, domain.WrapError(domain.ErrConflict, "dispatch document", fmt.Errorf("document %s is %s", doc.ID, doc.Status))
	}
	return uc.start(ctx, doc, forceBackground)
}

// Reprocess starts a new run for a finished document, replacing its previous result.
func (uc *DispatchUseCase) Reprocess(ctx context.Context, documentID string, forceBackground bool) (*domain.DispatchResult, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Status != domain.StatusCompleted && doc.Status != domain.StatusError {
		return nil, domain.WrapError(
			domain.ErrConflict,
			"reprocess document",
			fmt.Errorf("document %s is %s, want completed or error", doc.ID, doc.Status),
		)
	}
	return uc.start(ctx, doc, forceBackground)
}

func (uc *DispatchUseCase) start(ctx context.Context, doc *domain.Document, forceBackground bool) (*domain.DispatchResult, error) {
	size, statErr := uc.storage.Stat(ctx, doc.StoragePath)

	mode := domain.ModeSync
	if statErr == nil && (forceBackground || size > uc.cfg.SyncMaxFileBytes) {
		mode = domain.ModeBackground
	}
	jobID := ""
	if mode == domain.ModeBackground {
		jobID = uc.newJobID()
	}

	ticket, err := uc.repo.BeginRun(ctx, doc.ID, mode, jobID)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	slog.Info("document_dispatched",
		"document_id", doc.ID,
		"run_seq", ticket.RunSeq,
		"mode", string(mode),
		"job_id", jobID,
		"size_bytes", size,
	)

	if statErr != nil {
		if !domain.IsKind(statErr, domain.ErrDocumentFileMissing) {
			statErr = domain.WrapError(domain.ErrDocumentFileMissing, "stat document file", statErr)
		}
		return uc.finishInline(ctx, ticket, nil, statErr, 0)
	}
	if mode == domain.ModeSync {
		started := uc.now()
		report, runErr := uc.process.Execute(ctx, doc)
		return uc.finishInline(ctx, ticket, report, runErr, uc.now().Sub(started))
	}
	return uc.enqueue(ctx, ticket, size)
}

func (uc *DispatchUseCase) finishInline(
	ctx context.Context,
	ticket domain.RunTicket,
	report *domain.ExtractionReport,
	runErr error,
	elapsed time.Duration,
) (*domain.DispatchResult, error) {
	outcome, err := uc.process.Finish(ctx, ticket, report, runErr, elapsed)
	if err != nil {
		return nil, err
	}
	result := &domain.DispatchResult{
		DocumentID: ticket.DocumentID,
		Mode:       ticket.Mode,
		RunSeq:     ticket.RunSeq,
		Status:     domain.JobCompleted,
		Report:     outcome.Report,
	}
	if outcome.Status == domain.StatusError {
		result.Status = domain.JobFailed
		result.Error = outcome.Error
		slog.Warn("document_processing_failed",
			"document_id", ticket.DocumentID,
			"run_seq", ticket.RunSeq,
			"error", runErr.Error(),
		)
	}
	// A missing template is a precondition failure the caller must see.
	if domain.IsKind(runErr, domain.ErrTemplateNotFound) {
		return result, runErr
	}
	return result, nil
}

func (uc *DispatchUseCase) enqueue(ctx context.Context, ticket domain.RunTicket, size int64) (*domain.DispatchResult, error) {
	now := uc.now().UTC()
	job := domain.ExtractionJob{
		JobID:      ticket.JobID,
		DocumentID: ticket.DocumentID,
		RunSeq:     ticket.RunSeq,
		EnqueuedAt: now,
	}
	uc.putJobState(ctx, domain.JobState{
		JobID:      job.JobID,
		DocumentID: job.DocumentID,
		RunSeq:     job.RunSeq,
		Status:     domain.JobQueued,
		UpdatedAt:  now,
	})

	if err := uc.queue.Enqueue(ctx, job); err != nil {
		queueErr := domain.WrapError(domain.ErrQueueUnavailable, "enqueue extraction job", err)
		uc.putJobState(ctx, domain.JobState{
			JobID:      job.JobID,
			DocumentID: job.DocumentID,
			RunSeq:     job.RunSeq,
			Status:     domain.JobFailed,
			Error:      queueErr.Error(),
			UpdatedAt:  uc.now().UTC(),
		})
		if _, finishErr := uc.process.Finish(ctx, ticket, nil, queueErr, 0); finishErr != nil {
			return nil, errors.Join(queueErr, finishErr)
		}
		return nil, queueErr
	}

	eta := now.Add(uc.estimate(size))
	return &domain.DispatchResult{
		DocumentID:          ticket.DocumentID,
		Status:              domain.JobQueued,
		Mode:                domain.ModeBackground,
		JobID:               ticket.JobID,
		RunSeq:              ticket.RunSeq,
		EstimatedCompletion: &eta,
	}, nil
}

// estimate is max(MinEstimate, EstimatePerMiB per started MiB).
func (uc *DispatchUseCase) estimate(size int64) time.Duration {
	mib := (size + mebibyte - 1) / mebibyte
	d := time.Duration(mib) * uc.cfg.EstimatePerMiB
	if d < uc.cfg.MinEstimate {
		return uc.cfg.MinEstimate
	}
	return d
}

// Status reports a document's processing state. A background run that the
// job store already reports as done is pulled forward into the document.
func (uc *DispatchUseCase) Status(ctx context.Context, documentID string) (*domain.ProcessingStatus, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	status := statusOf(doc)
	if doc.Status != domain.StatusProcessing || doc.Mode != domain.ModeBackground || doc.JobID == "" {
		return status, nil
	}

	state, err := uc.jobs.Get(ctx, doc.JobID)
	if err != nil {
		slog.Warn("job_state_unavailable", "document_id", doc.ID, "job_id", doc.JobID, "error", err.Error())
		return status, nil
	}
	status.JobStatus = state.Status
	status.Attempt = state.Attempt
	if !state.Status.Done() || state.RunSeq != doc.RunSeq {
		return status, nil
	}

	if err := uc.reconcile(ctx, doc, state); err != nil && !domain.IsKind(err, domain.ErrStaleRun) {
		return nil, err
	}
	doc, err = uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("reload document: %w", err)
	}
	reconciled := statusOf(doc)
	reconciled.Attempt = state.Attempt
	return reconciled, nil
}

func (uc *DispatchUseCase) reconcile(ctx context.Context, doc *domain.Document, state *domain.JobState) error {
	ticket := domain.RunTicket{DocumentID: doc.ID, RunSeq: doc.RunSeq, Mode: doc.Mode, JobID: doc.JobID}
	var runErr error
	if state.Status == domain.JobFailed {
		runErr = errors.New(state.Error)
	}
	if _, err := uc.process.Finish(ctx, ticket, state.Report, runErr, 0); err != nil {
		return err
	}
	slog.Info("job_state_reconciled", "document_id", doc.ID, "job_id", doc.JobID, "job_status", string(state.Status))
	return nil
}

func (uc *DispatchUseCase) Health(ctx context.Context) (*domain.ProcessingHealth, error) {
	counts, err := uc.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents by status: %w", err)
	}
	return &domain.ProcessingHealth{QueueConnected: uc.queue.Connected(), Documents: counts}, nil
}

func (uc *DispatchUseCase) putJobState(ctx context.Context, state domain.JobState) {
	if err := uc.jobs.Put(ctx, state); err != nil {
		slog.Warn("job_state_write_failed", "job_id", state.JobID, "status", string(state.Status), "error", err.Error())
	}
}

func statusOf(doc *domain.Document) *domain.ProcessingStatus {
	st := &domain.ProcessingStatus{
		DocumentID: doc.ID,
		Status:     doc.Status,
		Mode:       doc.Mode,
		JobID:      doc.JobID,
		Report:     doc.Report,
		Error:      doc.Error,
	}
	switch doc.Status {
	case domain.StatusProcessing:
		if doc.Mode == domain.ModeBackground {
			st.JobStatus = domain.JobQueued
		} else {
			st.JobStatus = domain.JobRunning
		}
	case domain.StatusCompleted:
		st.JobStatus = domain.JobCompleted
	case domain.StatusError:
		st.JobStatus = domain.JobFailed
	}
	return st
}
