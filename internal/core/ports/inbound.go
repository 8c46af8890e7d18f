package ports

import (
	"context"
	"io"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload followed by dispatch.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, opts domain.UploadOptions, body io.Reader) (*domain.Document, *domain.DispatchResult, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ProcessingDispatcher chooses inline or background extraction and reports progress.
type ProcessingDispatcher interface {
	Dispatch(ctx context.Context, documentID string, forceBackground bool) (*domain.DispatchResult, error)
	Reprocess(ctx context.Context, documentID string, forceBackground bool) (*domain.DispatchResult, error)
	Status(ctx context.Context, documentID string) (*domain.ProcessingStatus, error)
	Health(ctx context.Context) (*domain.ProcessingHealth, error)
}

// ExtractionJobHandler executes one delivery of a background extraction job.
type ExtractionJobHandler interface {
	HandleJob(ctx context.Context, delivery domain.JobDelivery) error
}

// TextExtractionService runs the active template over text that is not tied to a document.
type TextExtractionService interface {
	ExtractText(ctx context.Context, text domain.RecognizedText) (*domain.ExtractionReport, error)
}

// TemplateCatalog is the inbound contract for templates and their fields.
type TemplateCatalog interface {
	ActiveTemplate(ctx context.Context) (*domain.Template, error)
	ListFields(ctx context.Context, templateID string) ([]domain.FieldDefinition, error)
	SetActive(ctx context.Context, templateID string) (*domain.Template, error)
	Get(ctx context.Context, templateID string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Create(ctx context.Context, tpl *domain.Template) error
	Delete(ctx context.Context, templateID string) error
	AddField(ctx context.Context, templateID string, field *domain.FieldDefinition) error
	UpdateField(ctx context.Context, templateID string, field *domain.FieldDefinition) error
	DeleteField(ctx context.Context, templateID, fieldName string) error
}

// StuckRunSweeper reclaims documents left in processing.
type StuckRunSweeper interface {
	Sweep(ctx context.Context) (int, error)
}
