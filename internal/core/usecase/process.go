package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

// ProcessDocumentUseCase is the unit of work shared by inline and background
// runs: recognize, extract against the active template, normalize, store.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	recognizer ports.TextRecognizer
	templates  ports.ActiveTemplateSource
	extractor  ports.FieldExtractor
	enhancer   ports.ReportEnhancer
	observer   ports.ExtractionObserver
	now        func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	recognizer ports.TextRecognizer,
	templates ports.ActiveTemplateSource,
	extractor ports.FieldExtractor,
	enhancer ports.ReportEnhancer,
	observer ports.ExtractionObserver,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		recognizer: recognizer,
		templates:  templates,
		extractor:  extractor,
		enhancer:   enhancer,
		observer:   observer,
		now:        time.Now,
	}
}

// Execute produces a report for doc without touching its stored state, so it
// is safe to repeat on redelivery.
func (uc *ProcessDocumentUseCase) Execute(ctx context.Context, doc *domain.Document) (*domain.ExtractionReport, error) {
	text, err := uc.recognize(ctx, doc)
	if err != nil {
		return nil, err
	}
	return uc.ExtractText(ctx, text)
}

// ExtractText runs the active template over already recognized text.
func (uc *ProcessDocumentUseCase) ExtractText(ctx context.Context, text domain.RecognizedText) (*domain.ExtractionReport, error) {
	tpl, err := uc.templates.ActiveTemplate(ctx)
	if err != nil {
		return nil, err
	}
	report, err := uc.extractor.Extract(ctx, text, tpl)
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if uc.enhancer != nil {
		report = uc.enhancer.Enhance(report)
	}
	if uc.observer != nil {
		uc.observer.ReportProduced(report)
	}
	return report, nil
}

// Finish stores the terminal state of the run identified by ticket. A nil
// runErr completes the document with report; otherwise it ends in error.
func (uc *ProcessDocumentUseCase) Finish(
	ctx context.Context,
	ticket domain.RunTicket,
	report *domain.ExtractionReport,
	runErr error,
	elapsed time.Duration,
) (*domain.RunOutcome, error) {
	outcome := uc.outcome(ticket, report, runErr)
	if err := uc.repo.FinishRun(ctx, outcome); err != nil {
		if domain.IsKind(err, domain.ErrStaleRun) {
			if uc.observer != nil {
				uc.observer.StaleRunDropped()
			}
			slog.Warn("stale_run_dropped",
				"document_id", ticket.DocumentID,
				"run_seq", ticket.RunSeq,
				"mode", string(ticket.Mode),
			)
		}
		return nil, fmt.Errorf("store run outcome: %w", err)
	}
	if uc.observer != nil {
		uc.observer.RunFinished(ticket.Mode, outcome.Status, elapsed)
	}
	return &outcome, nil
}

func (uc *ProcessDocumentUseCase) outcome(ticket domain.RunTicket, report *domain.ExtractionReport, runErr error) domain.RunOutcome {
	if runErr != nil {
		return domain.RunOutcome{
			Ticket: ticket,
			Status: domain.StatusError,
			Error:  &domain.ErrorDetail{Message: runErr.Error(), FailedAt: uc.now().UTC()},
		}
	}
	return domain.RunOutcome{Ticket: ticket, Status: domain.StatusCompleted, Report: report}
}

func (uc *ProcessDocumentUseCase) recognize(ctx context.Context, doc *domain.Document) (domain.RecognizedText, error) {
	text, err := uc.recognizer.Recognize(ctx, doc)
	if err != nil {
		return domain.RecognizedText{}, fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
