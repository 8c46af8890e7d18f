package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joseffiran/SilkRouteHelper-1/internal/bootstrap"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/templatefile"
)

func newTemplatesCommand(rt Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage extraction templates",
	}
	cmd.AddCommand(newTemplatesImportCommand(rt), newTemplatesListCommand(rt))
	return cmd
}

func newTemplatesImportCommand(rt Runtime) *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a template from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := templatefile.Load(args[0])
			if err != nil {
				return err
			}
			if activate {
				file.Activate = true
			}
			if rt.OpenCatalog == nil {
				return errors.New("database is not configured")
			}
			catalog, closeFn, err := rt.OpenCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			tpl, err := bootstrap.ImportTemplate(cmd.Context(), catalog, file)
			if err != nil {
				return err
			}
			cmd.Printf("Imported %s (%s) with %d fields, active=%t\n", tpl.Name, tpl.ID, len(tpl.Fields), tpl.IsActive)
			return nil
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", false, "make the imported template active")
	return cmd
}

func newTemplatesListCommand(rt Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.OpenCatalog == nil {
				return errors.New("database is not configured")
			}
			catalog, closeFn, err := rt.OpenCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			templates, err := catalog.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(templates) == 0 {
				cmd.Println("No templates found.")
				return nil
			}
			for _, tpl := range templates {
				marker := " "
				if tpl.IsActive {
					marker = "*"
				}
				cmd.Printf("%s %-36s %s (v%d)\n", marker, tpl.ID, tpl.Name, tpl.Version)
			}
			return nil
		},
	}
}
