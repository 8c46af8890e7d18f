package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

type ingestFake struct {
	gotFilename string
	gotMime     string
	gotOpts     domain.UploadOptions
	gotBody     string

	doc    *domain.Document
	result *domain.DispatchResult
	err    error
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType string, opts domain.UploadOptions, body io.Reader) (*domain.Document, *domain.DispatchResult, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	f.gotFilename = filename
	f.gotMime = mimeType
	f.gotOpts = opts
	f.gotBody = string(raw)
	return f.doc, f.result, f.err
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "gtd.pdf", Status: domain.StatusCompleted}, nil
}

type dispatcherFake struct {
	gotID    string
	gotForce bool

	result *domain.DispatchResult
	status *domain.ProcessingStatus
	health *domain.ProcessingHealth
	err    error
}

func (f *dispatcherFake) Dispatch(_ context.Context, id string, force bool) (*domain.DispatchResult, error) {
	f.gotID, f.gotForce = id, force
	return f.result, f.err
}

func (f *dispatcherFake) Reprocess(_ context.Context, id string, force bool) (*domain.DispatchResult, error) {
	f.gotID, f.gotForce = id, force
	return f.result, f.err
}

func (f *dispatcherFake) Status(_ context.Context, id string) (*domain.ProcessingStatus, error) {
	f.gotID = id
	return f.status, f.err
}

func (f *dispatcherFake) Health(context.Context) (*domain.ProcessingHealth, error) {
	if f.health == nil {
		return &domain.ProcessingHealth{QueueConnected: true, Documents: map[domain.DocumentStatus]int{}}, f.err
	}
	return f.health, f.err
}

type extractorFake struct {
	got domain.RecognizedText
	err error
}

func (f *extractorFake) ExtractText(_ context.Context, text domain.RecognizedText) (*domain.ExtractionReport, error) {
	f.got = text
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ExtractionReport{
		Fields: map[string]domain.FieldResult{
			"currency_code": {Value: "USD", Confidence: 0.9},
		},
		Statistics: domain.Statistics{TotalFields: 1, FilledFields: 1, HighConfidenceFields: 1, CompletionPercentage: 100},
	}, nil
}

type catalogFake struct {
	templates map[string]*domain.Template
	activeID  string

	lastField *domain.FieldDefinition
	err       error
}

func newCatalogFake() *catalogFake {
	return &catalogFake{
		templates: map[string]*domain.Template{
			"tpl-1": {ID: "tpl-1", Name: "ГТД", Version: 1, IsActive: true},
		},
		activeID: "tpl-1",
	}
}

func (f *catalogFake) ActiveTemplate(context.Context) (*domain.Template, error) {
	if f.activeID == "" {
		return nil, domain.WrapError(domain.ErrTemplateNotFound, "get active template", io.EOF)
	}
	return f.templates[f.activeID], nil
}

func (f *catalogFake) ListFields(ctx context.Context, id string) ([]domain.FieldDefinition, error) {
	tpl, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tpl.Fields, nil
}

func (f *catalogFake) SetActive(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.activeID = id
	tpl.IsActive = true
	return tpl, nil
}

func (f *catalogFake) Get(_ context.Context, id string) (*domain.Template, error) {
	tpl, ok := f.templates[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template", io.EOF)
	}
	return tpl, nil
}

func (f *catalogFake) List(context.Context) ([]domain.Template, error) {
	out := make([]domain.Template, 0, len(f.templates))
	for _, tpl := range f.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (f *catalogFake) Create(_ context.Context, tpl *domain.Template) error {
	if f.err != nil {
		return f.err
	}
	tpl.ID = "tpl-new"
	tpl.Version = 1
	tpl.CreatedAt = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	f.templates[tpl.ID] = tpl
	return nil
}

func (f *catalogFake) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	if id == f.activeID {
		return domain.WrapError(domain.ErrConflict, "delete template", errors.New("template is active"))
	}
	delete(f.templates, id)
	return nil
}

func (f *catalogFake) AddField(ctx context.Context, id string, field *domain.FieldDefinition) error {
	if f.err != nil {
		return f.err
	}
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	field.TemplateID = id
	f.lastField = field
	return nil
}

func (f *catalogFake) UpdateField(ctx context.Context, id string, field *domain.FieldDefinition) error {
	if f.err != nil {
		return f.err
	}
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	f.lastField = field
	return nil
}

func (f *catalogFake) DeleteField(ctx context.Context, id, name string) error {
	if f.err != nil {
		return f.err
	}
	_, err := f.Get(ctx, id)
	return err
}

type testServices struct {
	ingest     *ingestFake
	dispatcher *dispatcherFake
	extractor  *extractorFake
	catalog    *catalogFake
	docs       docsFake
}

func newTestServices() *testServices {
	return &testServices{
		ingest:     &ingestFake{},
		dispatcher: &dispatcherFake{},
		extractor:  &extractorFake{},
		catalog:    newCatalogFake(),
	}
}

func (s *testServices) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Ingest:     s.ingest,
		Documents:  s.docs,
		Dispatcher: s.dispatcher,
		Extractor:  s.extractor,
		Templates:  s.catalog,
	}, nil).Handler()
}
