package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/velide/middleware-setup/internal/logger"
	"github.com/velide/middleware-setup/internal/service/applier"
	"github.com/velide/middleware-setup/internal/upgrade"
	"github.com/velide/middleware-setup/internal/version"
)

var (
	// stagingPath is the directory the staged payload is applied from.
	stagingPath string

	// appRoot is the live installation directory receiving staged files.
	appRoot string

	// wait is the delay giving the invoking process time to exit.
	wait time.Duration

	// logFile receives a copy of applier output; the process that launched
	// the applier is usually gone before anyone reads its stdout.
	logFile string

	// rootCmd represents the base command for applying a staged update.
	rootCmd = &cobra.Command{
		Use:   "velide-applier",
		Short: "Apply a staged middleware update and restart the application",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if logFile != "" {
				logger.SetLogger(logger.NewWithRotatingFile(nil, logFile))
			}

			options := &applier.Options{
				StagingPath: stagingPath,
				AppRoot:     appRoot,
				Wait:        wait,
			}

			return applier.Run(ctx, options)
		},
	}
)

// Execute runs the velide-applier CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&stagingPath, "staging", "s", upgrade.StagingPath(), "directory holding the staged payload")
	rootCmd.Flags().StringVarP(&appRoot, "root", "r", ".", "live installation directory")
	rootCmd.Flags().DurationVarP(&wait, "wait", "w", applier.DefaultWait, "delay before applying staged files")
	rootCmd.Flags().StringVarP(&logFile, "log-file", "l", "velide-applier.log", "path to the rotating log file")
}
