package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/confgen"
	"github.com/velide/middleware-setup/internal/logger"
	"github.com/velide/middleware-setup/internal/proc"
	"github.com/velide/middleware-setup/internal/upgrade"
	"github.com/velide/middleware-setup/internal/wizard"
)

var (
	errSourceRequired      = errors.New("payload source directory must be provided")
	errInstallRootRequired = errors.New("install root must be provided")
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// SourceDir holds the release payload shipped with the installer.
	SourceDir string
	// InstallRoot is the directory the middleware is (or will be) installed into.
	InstallRoot string
	// UpdateFolder is the URL future updates are downloaded from; persisted
	// into the setup settings on fresh installs.
	UpdateFolder string
	// RawArgs is the unparsed argument list, scanned for the upgrade flag.
	RawArgs []string
	// Prompter drives the interactive phase; defaults to huh forms.
	Prompter wizard.Prompter
}

// Run executes the installer flow and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "velide-setup")

	if opts.SourceDir == "" {
		return errSourceRequired
	}

	if opts.InstallRoot == "" {
		return errInstallRootRequired
	}

	prompter := opts.Prompter
	if prompter == nil {
		prompter = &wizard.Huh{}
	}

	upgradeMode := upgrade.Detect(opts.RawArgs)
	logger.InfoKV(ctx, "Starting installer", "upgrade", upgradeMode, "install_root", opts.InstallRoot)

	// Staging creation failure aborts the whole install: a partial upgrade
	// directed at the live directory would corrupt the running middleware.
	destination, err := upgrade.Destination(upgradeMode, opts.InstallRoot)
	if err != nil {
		return fmt.Errorf("install aborted: %w", err)
	}

	logger.InfoKV(ctx, "Deploying payload", "from", opts.SourceDir, "to", destination)

	if err = deployTree(opts.SourceDir, destination); err != nil {
		return fmt.Errorf("deploy payload: %w", err)
	}

	if upgradeMode {
		return finishUpgrade(ctx, opts.InstallRoot, destination)
	}

	return finishFreshInstall(ctx, opts, prompter)
}

// finishUpgrade preserves the existing config and hands the staged payload
// to the applier. The installer exits right after so its file locks are
// gone before the applier's wait elapses.
func finishUpgrade(ctx context.Context, installRoot, stagingPath string) error {
	configPath := config.GeneratedConfigPath(installRoot)
	templatePath := config.ConfigTemplatePath(installRoot)

	if _, err := confgen.Generate(ctx, templatePath, configPath, true, confgen.Request{}); err != nil {
		logger.ErrorKV(ctx, "Config check failed, continuing with the upgrade", "error", err)
	}

	applierPath := filepath.Join(installRoot, config.ApplierExecutableName())

	logger.InfoKV(ctx, "Launching the update applier", "executable", applierPath)

	err := proc.StartDetached(installRoot, applierPath,
		"--staging", stagingPath, "--root", installRoot)
	if err != nil {
		return fmt.Errorf("launch applier: %w", err)
	}

	return nil
}

// finishFreshInstall runs the interactive phase and generates the config.
// A config that already exists skips the wizard entirely; config-step
// failures are logged and the install still succeeds.
func finishFreshInstall(ctx context.Context, opts *Options, prompter wizard.Prompter) error {
	settings := &config.Settings{
		InstallRoot:        opts.InstallRoot,
		ServerUpdateFolder: opts.UpdateFolder,
	}

	settingsPath := filepath.Join(opts.InstallRoot, config.DefaultSettingsFilename)
	if err := config.Save(settingsPath, settings); err != nil {
		logger.ErrorKV(ctx, "Could not persist setup settings", "path", settingsPath, "error", err)
	}

	configPath := config.GeneratedConfigPath(opts.InstallRoot)
	templatePath := config.ConfigTemplatePath(opts.InstallRoot)

	request := confgen.Request{}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		var wizardErr error

		request, wizardErr = wizard.Run(ctx, prompter)
		if wizardErr != nil {
			logger.ErrorKV(ctx, "Interactive configuration failed, skipping config generation", "error", wizardErr)
			return nil
		}
	}

	outcome, err := confgen.Generate(ctx, templatePath, configPath, false, request)
	if err != nil {
		// Application files are installed; a config failure only skips this step.
		logger.ErrorKV(ctx, "Config generation failed, application files remain installed", "error", err)
		return nil
	}

	logger.InfoKV(ctx, "Installer finished", "config", outcome.String())

	return nil
}

// deployTree copies the payload tree into the destination, overwriting
// whatever is already there.
func deployTree(source, destination string) error {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return err
	}

	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		target := filepath.Join(destination, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		return copyFile(path, target, d)
	})
}

// copyFile copies a single payload file, preserving its mode.
func copyFile(source, target string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(target), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
