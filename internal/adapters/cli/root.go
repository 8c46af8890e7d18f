// Package cli is the operator command line for declaration extraction.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
)

// Runtime supplies the database-backed services lazily, so commands that work
// on local files never open a connection.
type Runtime struct {
	Config      config.Config
	OpenCatalog func(ctx context.Context) (ports.TemplateCatalog, func(), error)
	OpenSweeper func(ctx context.Context) (ports.StuckRunSweeper, func(), error)
}

func NewRootCommand(rt Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "declctl",
		Short:         "Operate customs declaration field extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newExtractCommand(rt),
		newTemplatesCommand(rt),
		newCleanupCommand(rt),
	)
	return root
}
