package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/templatefile"
)

// EnsureActiveTemplate imports the seed template when no template is active.
// seedPath overrides the built-in customs declaration template.
func EnsureActiveTemplate(ctx context.Context, catalog ports.TemplateCatalog, seedPath string) error {
	_, err := catalog.ActiveTemplate(ctx)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrTemplateNotFound) {
		return err
	}

	file, err := loadSeed(seedPath)
	if err != nil {
		return err
	}
	file.Activate = true
	tpl, err := ImportTemplate(ctx, catalog, file)
	if err != nil {
		return err
	}
	slog.Info("template_seeded", "template_id", tpl.ID, "name", tpl.Name, "fields", len(tpl.Fields))
	return nil
}

// ImportTemplate stores a template file and activates it when the file asks to.
func ImportTemplate(ctx context.Context, catalog ports.TemplateCatalog, file *templatefile.File) (*domain.Template, error) {
	tpl := file.Template()
	if err := catalog.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("create template %q: %w", tpl.Name, err)
	}
	if !file.Activate {
		return tpl, nil
	}
	active, err := catalog.SetActive(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("activate template %q: %w", tpl.Name, err)
	}
	return active, nil
}

func loadSeed(path string) (*templatefile.File, error) {
	if path == "" {
		return templatefile.Seed()
	}
	return templatefile.Load(path)
}
