package ports

import (
	"context"
	"io"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// BeginRun moves a document into processing and returns its new run ticket.
	// It fails with ErrConflict when a run is already in progress.
	BeginRun(ctx context.Context, id string, mode domain.ProcessingMode, jobID string) (domain.RunTicket, error)
	// FinishRun stores the terminal state of a run; ErrStaleRun when the ticket is outdated.
	FinishRun(ctx context.Context, outcome domain.RunOutcome) error
	FailStuck(ctx context.Context, startedBefore time.Time, detail domain.ErrorDetail) ([]string, error)
	CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error)
}

// TemplateRepository persists templates and their field definitions.
type TemplateRepository interface {
	Create(ctx context.Context, tpl *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	GetActive(ctx context.Context) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string) error
	AddField(ctx context.Context, field *domain.FieldDefinition) error
	UpdateField(ctx context.Context, field *domain.FieldDefinition) error
	DeleteField(ctx context.Context, templateID, name string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns the stored size; ErrDocumentFileMissing when the key is absent.
	Stat(ctx context.Context, key string) (int64, error)
}

// JobQueue is the at-least-once background job substrate.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.ExtractionJob) error
	Consume(ctx context.Context, handler func(context.Context, domain.JobDelivery) error) error
	Connected() bool
}

// JobStateStore keeps the externally visible state of background jobs.
type JobStateStore interface {
	Put(ctx context.Context, state domain.JobState) error
	Get(ctx context.Context, jobID string) (*domain.JobState, error)
}

// TextRecognizer turns a stored document into recognized text.
type TextRecognizer interface {
	Recognize(ctx context.Context, doc *domain.Document) (domain.RecognizedText, error)
}

// FieldExtractor maps recognized text onto a template.
type FieldExtractor interface {
	Extract(ctx context.Context, text domain.RecognizedText, tpl *domain.Template) (*domain.ExtractionReport, error)
}

// ReportEnhancer refines a report without removing anything from it.
type ReportEnhancer interface {
	Enhance(report *domain.ExtractionReport) *domain.ExtractionReport
}

// ExtractionObserver receives processing outcomes for metrics.
type ExtractionObserver interface {
	RunFinished(mode domain.ProcessingMode, status domain.DocumentStatus, duration time.Duration)
	ReportProduced(report *domain.ExtractionReport)
	JobRetried()
	StaleRunDropped()
}

// ActiveTemplateSource yields the template snapshot used for one extraction run.
type ActiveTemplateSource interface {
	ActiveTemplate(ctx context.Context) (*domain.Template, error)
}
