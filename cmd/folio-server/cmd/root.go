package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/permitdesk/folio/internal/config"
	"github.com/permitdesk/folio/internal/service/server"
	"github.com/permitdesk/folio/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string

	// rootCmd represents the base command for running the folio server.
	rootCmd = &cobra.Command{
		Use:   "folio-server [listen-address]",
		Short: "Run the folio issuance and reminder server.",
		Long: `Starts the HTTP server that issues payment folios, runs their
countdowns, and sends staged reminders until payment or expiry.

The server listens on the specified address or uses settings from the
configuration file. Listen address can be provided as argument to
override the config (e.g. :9090, 0.0.0.0:8080). Folio records are
persisted to Postgres; countdowns run in memory and the next available
folio is re-derived from the store on startup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
			})
		},
	}
)

// Execute runs the folio-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
