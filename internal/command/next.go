package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"NewsStream/internal/domain"
)

// NewNextCmd creates the next command.
func NewNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Deliver the newest unseen item to a consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			if consumer == "" {
				return fmt.Errorf("--consumer is required")
			}

			application, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			item, ok, err := application.Next(cmd.Context(), domain.ConsumerID(consumer))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "no new item")
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", item.PublishedAt.UTC().Format(time.RFC3339), item.Link, item.Title)
			return nil
		},
	}

	cmd.Flags().String("consumer", "", "consumer id (a chat id)")
	return cmd
}
