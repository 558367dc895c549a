package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"NewsStream/internal/domain"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the latest deliveries to a consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			if consumer == "" {
				return fmt.Errorf("--consumer is required")
			}
			limit, _ := cmd.Flags().GetUint64("limit")

			application, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			deliveries, err := application.History(cmd.Context(), domain.ConsumerID(consumer), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(deliveries) == 0 {
				fmt.Fprintln(out, "no deliveries")
				return nil
			}
			for _, d := range deliveries {
				fmt.Fprintf(out, "%s\t%s\n", d.DeliveredAt.UTC().Format(time.RFC3339), d.Link)
			}
			return nil
		},
	}

	cmd.Flags().String("consumer", "", "consumer id (a chat id)")
	cmd.Flags().Uint64("limit", 20, "maximum number of rows")
	return cmd
}
