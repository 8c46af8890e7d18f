package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

const sampleTemplate = `name: Тестовый шаблон
version: 1
fields:
  - name: currency_code
    label: Валюта
    rule:
      type: regex
      pattern: '(?:^|[^A-Z])(USD|EUR|RUB)(?:[^A-Z]|$)'
      capture_group: 1
  - name: sender
    label: Отправитель
    rule:
      type: line_after_keyword
      keyword: отправитель
`

type catalogFake struct {
	active    *domain.Template
	templates []domain.Template
	created   []*domain.Template
	activated []string
	closed    int
}

func (f *catalogFake) ActiveTemplate(context.Context) (*domain.Template, error) {
	if f.active == nil {
		return nil, domain.WrapError(domain.ErrTemplateNotFound, "get active template", errors.New("none"))
	}
	return f.active, nil
}

func (f *catalogFake) ListFields(context.Context, string) ([]domain.FieldDefinition, error) {
	return nil, nil
}

func (f *catalogFake) SetActive(_ context.Context, id string) (*domain.Template, error) {
	f.activated = append(f.activated, id)
	tpl := f.created[len(f.created)-1]
	tpl.IsActive = true
	return tpl, nil
}

func (f *catalogFake) Get(context.Context, string) (*domain.Template, error) { return nil, nil }

func (f *catalogFake) List(context.Context) ([]domain.Template, error) {
	return f.templates, nil
}

func (f *catalogFake) Create(_ context.Context, tpl *domain.Template) error {
	tpl.ID = "tpl-imported"
	f.created = append(f.created, tpl)
	return nil
}

func (f *catalogFake) Delete(context.Context, string) error { return nil }
func (f *catalogFake) AddField(context.Context, string, *domain.FieldDefinition) error {
	return nil
}
func (f *catalogFake) UpdateField(context.Context, string, *domain.FieldDefinition) error {
	return nil
}
func (f *catalogFake) DeleteField(context.Context, string, string) error { return nil }

type sweeperFake struct {
	n   int
	err error
}

func (f sweeperFake) Sweep(context.Context) (int, error) { return f.n, f.err }

func runtimeWith(catalog *catalogFake, sweeper ports.StuckRunSweeper) Runtime {
	return Runtime{
		Config: config.Config{HighConfidenceThreshold: 0.8},
		OpenCatalog: func(context.Context) (ports.TemplateCatalog, func(), error) {
			return catalog, func() { catalog.closed++ }, nil
		},
		OpenSweeper: func(context.Context) (ports.StuckRunSweeper, func(), error) {
			return sweeper, func() {}, nil
		},
	}
}

func execute(t *testing.T, rt Runtime, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	root := NewRootCommand(rt)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExtractWithTemplateFilePrintsJSON(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "template.yaml", sampleTemplate)
	textPath := writeFile(t, dir, "scan.txt", "Отправитель\nООО Ромашка\nВалюта: USD\n")

	out, err := execute(t, Runtime{Config: config.Config{HighConfidenceThreshold: 0.8}}, "extract", "--json", "--template", tplPath, textPath)
	if err != nil {
		t.Fatalf("extract error = %v, output %s", err, out)
	}

	var report domain.ExtractionReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if got := report.Fields["currency_code"].Value; got != "USD" {
		t.Fatalf("currency_code = %q, want USD", got)
	}
	if got := report.Fields["sender"].Value; got != "ООО Ромашка" {
		t.Fatalf("sender = %q, want ООО Ромашка", got)
	}
	if report.Fields["currency_code"].Normalized == nil {
		t.Fatalf("expected currency normalization")
	}
	if report.Statistics.TotalFields != 2 || report.Statistics.FilledFields != 2 {
		t.Fatalf("unexpected statistics: %+v", report.Statistics)
	}
}

func TestExtractUsesActiveTemplateByDefault(t *testing.T) {
	dir := t.TempDir()
	textPath := writeFile(t, dir, "scan.txt", "Валюта EUR")
	catalog := &catalogFake{active: &domain.Template{
		ID:   "tpl-1",
		Name: "ГТД",
		Fields: []domain.FieldDefinition{{
			Name:  "currency_code",
			Label: "Валюта",
			Rule:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "валюта", ExtractAs: domain.ExtractWord},
		}},
	}}

	out, err := execute(t, runtimeWith(catalog, nil), "extract", textPath)
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}
	if !strings.Contains(out, "Template: ГТД") || !strings.Contains(out, "EUR") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if catalog.closed != 1 {
		t.Fatalf("expected catalog to be closed once, got %d", catalog.closed)
	}
}

func TestExtractWithoutTemplateOrDatabaseFails(t *testing.T) {
	textPath := writeFile(t, t.TempDir(), "scan.txt", "text")
	if _, err := execute(t, Runtime{}, "extract", textPath); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExtractRequiresOneArgument(t *testing.T) {
	_, err := execute(t, Runtime{}, "extract")
	if err == nil || !strings.Contains(err.Error(), "accepts 1 arg(s)") {
		t.Fatalf("expected argument error, got %v", err)
	}
}

func TestTemplatesImportActivates(t *testing.T) {
	tplPath := writeFile(t, t.TempDir(), "template.yaml", sampleTemplate)
	catalog := &catalogFake{}

	out, err := execute(t, runtimeWith(catalog, nil), "templates", "import", "--activate", tplPath)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if len(catalog.created) != 1 || len(catalog.activated) != 1 {
		t.Fatalf("expected create and activate, got %d/%d", len(catalog.created), len(catalog.activated))
	}
	if !strings.Contains(out, "active=true") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestTemplatesImportRejectsInvalidFile(t *testing.T) {
	tplPath := writeFile(t, t.TempDir(), "broken.yaml", "name: x\nunknown: 1\n")
	catalog := &catalogFake{}

	if _, err := execute(t, runtimeWith(catalog, nil), "templates", "import", tplPath); err == nil {
		t.Fatalf("expected error")
	}
	if len(catalog.created) != 0 {
		t.Fatalf("invalid template must not be stored")
	}
}

func TestTemplatesListMarksActive(t *testing.T) {
	catalog := &catalogFake{templates: []domain.Template{
		{ID: "tpl-1", Name: "ГТД", Version: 3, IsActive: true},
		{ID: "tpl-2", Name: "Инвойс", Version: 1},
	}}

	out, err := execute(t, runtimeWith(catalog, nil), "templates", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "* tpl-1") || !strings.Contains(out, "  tpl-2") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCleanupReportsCount(t *testing.T) {
	out, err := execute(t, runtimeWith(&catalogFake{}, sweeperFake{n: 3}), "cleanup")
	if err != nil {
		t.Fatalf("cleanup error = %v", err)
	}
	if !strings.Contains(out, "Reclaimed 3 stuck documents") {
		t.Fatalf("unexpected output: %s", out)
	}

	_, err = execute(t, runtimeWith(&catalogFake{}, sweeperFake{err: errors.New("db down")}), "cleanup")
	if err == nil {
		t.Fatalf("expected sweep error")
	}
}
