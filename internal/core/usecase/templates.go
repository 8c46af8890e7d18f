package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/extraction"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

const activeTemplateKey = "active"

// TemplateService manages declaration templates. Readers get an immutable
// snapshot of the active template; any write drops the cached snapshot.
type TemplateService struct {
	repo  ports.TemplateRepository
	cache *expirable.LRU[string, *domain.Template]
	now   func() time.Time
}

// NewTemplateService builds the service; cacheTTL <= 0 disables the snapshot cache.
func NewTemplateService(repo ports.TemplateRepository, cacheTTL time.Duration) *TemplateService {
	s := &TemplateService{repo: repo, now: time.Now}
	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, *domain.Template](1, nil, cacheTTL)
	}
	return s
}

func (s *TemplateService) ActiveTemplate(ctx context.Context) (*domain.Template, error) {
	if s.cache != nil {
		if tpl, ok := s.cache.Get(activeTemplateKey); ok {
			return cloneTemplate(tpl), nil
		}
	}
	tpl, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active template: %w", err)
	}
	if s.cache != nil {
		s.cache.Add(activeTemplateKey, cloneTemplate(tpl))
	}
	return tpl, nil
}

// ListFields returns the template's fields in authoring order.
func (s *TemplateService) ListFields(ctx context.Context, templateID string) ([]domain.FieldDefinition, error) {
	tpl, err := s.repo.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template fields: %w", err)
	}
	return tpl.Fields, nil
}

// SetActive makes templateID the only active template.
func (s *TemplateService) SetActive(ctx context.Context, templateID string) (*domain.Template, error) {
	if err := s.repo.SetActive(ctx, templateID); err != nil {
		return nil, fmt.Errorf("activate template: %w", err)
	}
	s.invalidate()
	slog.Info("template_activated", "template_id", templateID)

	tpl, err := s.repo.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("reload activated template: %w", err)
	}
	return tpl, nil
}

func (s *TemplateService) Get(ctx context.Context, templateID string) (*domain.Template, error) {
	return s.repo.GetByID(ctx, templateID)
}

func (s *TemplateService) List(ctx context.Context) ([]domain.Template, error) {
	return s.repo.List(ctx)
}

// Create stores a new inactive template together with its fields.
func (s *TemplateService) Create(ctx context.Context, tpl *domain.Template) error {
	if err := validateTemplate(tpl); err != nil {
		return err
	}
	now := s.now().UTC()
	tpl.ID = uuid.NewString()
	tpl.IsActive = false
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	for i := range tpl.Fields {
		tpl.Fields[i].ID = uuid.NewString()
		tpl.Fields[i].TemplateID = tpl.ID
		tpl.Fields[i].Position = i
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	slog.Info("template_created", "template_id", tpl.ID, "name", tpl.Name, "fields", len(tpl.Fields))
	return nil
}

func (s *TemplateService) Delete(ctx context.Context, templateID string) error {
	if err := s.repo.Delete(ctx, templateID); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.invalidate()
	return nil
}

// AddField appends a field; names must stay unique within the template.
func (s *TemplateService) AddField(ctx context.Context, templateID string, field *domain.FieldDefinition) error {
	if err := validateField(*field); err != nil {
		return err
	}
	tpl, err := s.repo.GetByID(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	if _, exists := tpl.Field(field.Name); exists {
		return domain.WrapError(domain.ErrConflict, "add field", fmt.Errorf("field %q already exists", field.Name))
	}
	field.ID = uuid.NewString()
	field.TemplateID = templateID
	field.Position = len(tpl.Fields)
	if err := s.repo.AddField(ctx, field); err != nil {
		return fmt.Errorf("add field: %w", err)
	}
	s.invalidate()
	return nil
}

// UpdateField replaces the definition of the field with the same name.
func (s *TemplateService) UpdateField(ctx context.Context, templateID string, field *domain.FieldDefinition) error {
	if err := validateField(*field); err != nil {
		return err
	}
	tpl, err := s.repo.GetByID(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	existing, ok := tpl.Field(field.Name)
	if !ok {
		return domain.WrapError(domain.ErrFieldNotFound, "update field", fmt.Errorf("field %q", field.Name))
	}
	field.ID = existing.ID
	field.TemplateID = templateID
	field.Position = existing.Position
	if err := s.repo.UpdateField(ctx, field); err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *TemplateService) DeleteField(ctx context.Context, templateID, fieldName string) error {
	if err := s.repo.DeleteField(ctx, templateID, fieldName); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *TemplateService) invalidate() {
	if s.cache != nil {
		s.cache.Remove(activeTemplateKey)
	}
}

func validateTemplate(tpl *domain.Template) error {
	if tpl == nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate template", fmt.Errorf("template is required"))
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	for _, f := range tpl.Fields {
		if err := extraction.Validate(f.Rule); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

func validateField(f domain.FieldDefinition) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := extraction.Validate(f.Rule); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

func cloneTemplate(tpl *domain.Template) *domain.Template {
	if tpl == nil {
		return nil
	}
	out := *tpl
	out.Fields = append([]domain.FieldDefinition(nil), tpl.Fields...)
	return &out
}
