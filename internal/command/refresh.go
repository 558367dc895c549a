package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one collection pass over every configured site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			stats, err := application.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"sources=%d failed=%d listed=%d known=%d resolved=%d dropped=%d inserted=%d\n",
				stats.Sources, stats.FailedSources, stats.Listed, stats.Known,
				stats.Resolved, stats.Dropped, stats.Inserted)
			return nil
		},
	}
}
