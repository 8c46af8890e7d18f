package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joseffiran/SilkRouteHelper-1/internal/bootstrap"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/recognizer/textlayer"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/storage/localfs"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/templatefile"
)

func newExtractCommand(rt Runtime) *cobra.Command {
	var (
		templatePath string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract declaration fields from a local file",
		Long: `Recognizes a local text, PDF or .ocr.json file and runs the extraction
template over it. Without --template the active template is read from the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tpl, err := resolveTemplate(cmd, rt, templatePath)
			if err != nil {
				return err
			}
			text, err := recognizeFile(cmd, args[0])
			if err != nil {
				return err
			}

			orchestrator, normalizer, err := bootstrap.NewEngine(rt.Config)
			if err != nil {
				return err
			}
			report, err := orchestrator.Extract(ctx, text, tpl)
			if err != nil {
				return fmt.Errorf("extract fields: %w", err)
			}
			report = normalizer.Enhance(report)

			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal report: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template YAML file instead of the active template")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func resolveTemplate(cmd *cobra.Command, rt Runtime, path string) (*domain.Template, error) {
	if path != "" {
		file, err := templatefile.Load(path)
		if err != nil {
			return nil, err
		}
		tpl := file.Template()
		tpl.ID = filepath.Base(path)
		return tpl, nil
	}
	if rt.OpenCatalog == nil {
		return nil, errors.New("no template file given and no database configured")
	}
	catalog, closeFn, err := rt.OpenCatalog(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return catalog.ActiveTemplate(cmd.Context())
}

func recognizeFile(cmd *cobra.Command, path string) (domain.RecognizedText, error) {
	storage, err := localfs.New(filepath.Dir(path))
	if err != nil {
		return domain.RecognizedText{}, err
	}
	doc := &domain.Document{
		ID:          filepath.Base(path),
		Filename:    filepath.Base(path),
		StoragePath: filepath.Base(path),
	}
	return textlayer.NewRecognizer(storage).Recognize(cmd.Context(), doc)
}

func printReport(cmd *cobra.Command, report *domain.ExtractionReport) {
	names := make([]string, 0, len(report.Fields))
	for name := range report.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	cmd.Printf("Template: %s (v%d)\n", report.TemplateName, report.TemplateVersion)
	for _, name := range names {
		res := report.Fields[name]
		if res.Value == "" {
			continue
		}
		line := fmt.Sprintf("  %-30s %s (%.2f)", name, res.Value, res.Confidence)
		if res.Normalized != nil {
			line += fmt.Sprintf(" -> %s", res.Normalized.Code)
		}
		cmd.Println(line)
	}
	s := report.Statistics
	cmd.Printf("Filled %d/%d fields (%.1f%%), %d high confidence\n",
		s.FilledFields, s.TotalFields, s.CompletionPercentage, s.HighConfidenceFields)
	for _, f := range report.Failures {
		cmd.Printf("  rule failed: %s: %s\n", f.Field, f.Error)
	}
}
