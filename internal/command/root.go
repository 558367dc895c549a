package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"NewsStream/internal/app"
	"NewsStream/internal/config"
	"NewsStream/internal/logging"
)

const AppName = "newsstream"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "NewsStream - feed aggregation with per-chat delivery",
		Long:          "NewsStream collects links from configured feeds and hands every chat the newest item it has not seen yet.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to YAML config (defaults to $NEWSSTREAM_CONFIG)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		NewServeCmd(),
		NewNextCmd(),
		NewRefreshCmd(),
		NewMigrateCmd(),
		NewHistoryCmd(),
	)

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd(Version).Execute()
}

// openApp loads configuration for cmd and builds the application.
// Logs go to the command's error stream so stdout stays machine-readable.
func openApp(cmd *cobra.Command) (*app.Application, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger := logging.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", AppName, err)
	}
	return application, nil
}
