package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/service/updater"
	"github.com/velide/middleware-setup/internal/version"
)

var (
	// settingsPath to the setup settings YAML file.
	settingsPath string

	// rootCmd represents the base command for checking and staging updates.
	rootCmd = &cobra.Command{
		Use:   "velide-updater",
		Short: "Check the update folder and stage a newer middleware release",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &updater.Options{
				SettingsPath: settingsPath,
			}

			return updater.Run(ctx, options)
		},
	}
)

// Execute runs the velide-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&settingsPath, "config", "c", config.DefaultSettingsFilename, "path to setup settings file")
}
