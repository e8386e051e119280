package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velide/middleware-setup/internal/service/setup"
	"github.com/velide/middleware-setup/internal/version"
)

var (
	// sourceDir holds the payload shipped next to the installer.
	sourceDir string

	// installRoot is the directory the middleware is installed into.
	installRoot string

	// updateFolder is the URL future updates are downloaded from.
	updateFolder string

	// upgradeValue mirrors the --upgrade flag; its value is re-read from the
	// raw argument list so /upgrade=1 and -upgrade=1 work too.
	upgradeValue string

	// rootCmd represents the base command for installing the middleware.
	rootCmd = &cobra.Command{
		Use:   "velide-setup",
		Short: "Install or upgrade the Velide middleware",
		Args:  cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &setup.Options{
				SourceDir:    sourceDir,
				InstallRoot:  installRoot,
				UpdateFolder: updateFolder,
				RawArgs:      os.Args[1:],
			}

			return setup.Run(ctx, options)
		},
	}
)

// Execute runs the velide-setup CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&sourceDir, "source", "s", ".", "directory holding the release payload")
	rootCmd.Flags().StringVarP(&installRoot, "root", "r", "", "directory to install the middleware into")
	rootCmd.Flags().StringVarP(&updateFolder, "update-folder", "u", "", "URL future updates are downloaded from")
	rootCmd.Flags().StringVar(&upgradeValue, "upgrade", "", "set to 1 to run in upgrade mode")
}
