// Package templatefile reads declaration templates authored as YAML.
package templatefile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/extraction"
)

//go:embed seed/*.yaml
var seedFS embed.FS

// File is one template document. Activate asks importers to make the
// template active once stored.
type File struct {
	Name     string                   `yaml:"name"`
	Version  int                      `yaml:"version"`
	Activate bool                     `yaml:"activate"`
	Fields   []domain.FieldDefinition `yaml:"fields"`
}

func (f File) Template() *domain.Template {
	tpl := &domain.Template{
		Name:    f.Name,
		Version: f.Version,
		Fields:  append([]domain.FieldDefinition(nil), f.Fields...),
	}
	for i := range tpl.Fields {
		tpl.Fields[i].Position = i
	}
	return tpl
}

func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}

// Parse decodes and validates a template. Unknown keys and rules that do not
// compile are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse template file", errors.New("empty document"))
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse template file", err)
	}
	if err := f.Template().Validate(); err != nil {
		return nil, err
	}
	for _, field := range f.Fields {
		if err := extraction.Validate(field.Rule); err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return &f, nil
}

// Seed returns the built-in Russian customs declaration template.
func Seed() (*File, error) {
	raw, err := seedFS.ReadFile("seed/russian_customs.yaml")
	if err != nil {
		return nil, fmt.Errorf("read seed template: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}
