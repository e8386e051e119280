package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velide/middleware-setup/internal/service/packager"
	"github.com/velide/middleware-setup/internal/version"
)

var (
	// signingKeyPath to the PEM private key signing the release manifest.
	signingKeyPath string

	// rootCmd represents the base command for preparing a release for distribution.
	rootCmd = &cobra.Command{
		Use:   "velide-packager [release-dir] [update-folder]",
		Short: "Produce the release manifest for a built middleware payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				ReleaseDir:     args[0],
				SigningKeyPath: signingKeyPath,
			}

			if len(args) > 1 {
				options.UpdateFolder = args[1]
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the velide-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&signingKeyPath, "signing-key", "k", "", "PEM private key used to sign the manifest")
}
