package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Template struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Version   int               `json:"version"`
	IsActive  bool              `json:"is_active"`
	Fields    []FieldDefinition `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type FieldDefinition struct {
	ID          string        `json:"id" yaml:"-"`
	TemplateID  string        `json:"template_id" yaml:"-"`
	Name        string        `json:"field_name" yaml:"name"`
	Label       string        `json:"label" yaml:"label"`
	Section     string        `json:"section,omitempty" yaml:"section,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool          `json:"required" yaml:"required"`
	Position    int           `json:"position" yaml:"-"`
	Rule        RuleSpec      `json:"extraction_rules" yaml:"rule"`
	Default     *FieldDefault `json:"default,omitempty" yaml:"default,omitempty"`
}

// FieldDefault fills a field whose rule found nothing. CurrentDate takes
// precedence over Value and is the only clock-dependent input of a report.
type FieldDefault struct {
	Value       string  `json:"value,omitempty" yaml:"value,omitempty"`
	CurrentDate bool    `json:"current_date,omitempty" yaml:"current_date,omitempty"`
	Confidence  float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

func (f FieldDefinition) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return WrapError(ErrInvalidInput, "validate field", errors.New("field name is required"))
	}
	if strings.TrimSpace(f.Label) == "" {
		return WrapError(ErrInvalidInput, "validate field", fmt.Errorf("field %s: label is required", f.Name))
	}
	if d := f.Default; d != nil {
		if d.Confidence < 0 || d.Confidence > 1 {
			return WrapError(ErrInvalidInput, "validate field", fmt.Errorf("field %s: default confidence out of range", f.Name))
		}
		if !d.CurrentDate && d.Value == "" {
			return WrapError(ErrInvalidInput, "validate field", fmt.Errorf("field %s: default needs value or current_date", f.Name))
		}
	}
	if err := f.Rule.Validate(); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

// Validate enforces a non-empty name and unique field names.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return WrapError(ErrInvalidInput, "validate template", errors.New("template name is required"))
	}
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return WrapError(ErrConflict, "validate template", fmt.Errorf("duplicate field name %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

func (t Template) Field(name string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}
