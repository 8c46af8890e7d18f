package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newCleanupCommand(rt Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Move documents stuck in processing to error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.OpenSweeper == nil {
				return errors.New("database is not configured")
			}
			sweeper, closeFn, err := rt.OpenSweeper(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Reclaimed %d stuck documents\n", n)
			return nil
		},
	}
}
