package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/permitdesk/folio/internal/config"
	"github.com/permitdesk/folio/internal/service/admin"
	"github.com/permitdesk/folio/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// serverURL overrides the folio server base URL from settings.
	serverURL string

	// rootCmd represents the base command for the operator CLI.
	rootCmd = &cobra.Command{
		Use:   "folio-admin",
		Short: "Operate folios on a running folio server.",
		Long: `Command line client for the folio server's HTTP API.

Confirms payments, applies administrative overrides, stops countdowns,
and inspects folio state. The server address is taken from the
configuration file unless overridden with --server.`,
	}

	confirmCmd = &cobra.Command{
		Use:   "confirm <folio>",
		Short: "Mark a folio as paid and cancel its countdown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAction(admin.Confirm, args[0])
		},
	}

	overrideCmd = &cobra.Command{
		Use:   "override <folio>",
		Short: "Resolve a folio administratively, recording the acting operator.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAction(admin.Override, args[0])
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop <folio>",
		Short: "Cancel a folio's countdown without marking it paid.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAction(admin.Stop, args[0])
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status <folio>",
		Short: "Show a folio's record and remaining countdown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAction(admin.Status, args[0])
		},
	}
)

// runAction wires the shared flags and signal handling into an admin action.
func runAction(action func(context.Context, *admin.Options) error, folio string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return action(ctx, &admin.Options{
		ConfigPath: configPath,
		ServerURL:  serverURL,
		Folio:      folio,
	})
}

// Execute runs the folio-admin CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "folio server base URL")

	rootCmd.AddCommand(confirmCmd, overrideCmd, stopCmd, statusCmd)
}
