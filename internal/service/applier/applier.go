package applier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"go.uber.org/multierr"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/logger"
	"github.com/velide/middleware-setup/internal/payload"
	"github.com/velide/middleware-setup/internal/proc"
	"github.com/velide/middleware-setup/internal/upgrade"
)

var (
	errStagingMissing = errors.New("staging directory does not exist")
	errAlreadyRunning = errors.New("an update is already being applied")
	errAppRootMissing = errors.New("application root must be provided")
)

// DefaultWait gives the invoking process time to exit and release its file
// locks before staged files are moved over the live installation. It is a
// best-effort delay, not a mutual-exclusion barrier.
const DefaultWait = 5 * time.Second

// Stage is one phase of the apply flow.
type Stage int

// The linear stages of the apply flow.
const (
	StageWait Stage = iota
	StageVerifySource
	StageMove
	StageCleanup
	StageRestart
	StageEnd
)

// String returns a log-friendly stage name.
func (s Stage) String() string {
	switch s {
	case StageWait:
		return "WAIT"
	case StageVerifySource:
		return "VERIFY_SOURCE"
	case StageMove:
		return "MOVE"
	case StageCleanup:
		return "CLEANUP"
	case StageRestart:
		return "RESTART"
	case StageEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Options are inputs accepted by the applier entry point.
type Options struct {
	// StagingPath overrides the staging directory (defaults to the fixed
	// path under the OS temp directory).
	StagingPath string
	// AppRoot is the live installation directory receiving staged files.
	AppRoot string
	// Wait is the delay before touching any file (defaults to DefaultWait).
	Wait time.Duration
}

// runner holds the state of a single apply execution.
type runner struct {
	stagingPath string
	appRoot     string
	wait        time.Duration
	excluded    map[string]struct{} // Entry names never moved over the live install.
	manifest    *payload.Manifest   // Optional staged release manifest.
}

// Run executes the apply flow and is the public entry point for the CLI.
// Every path ends with a visible terminal log line; fatal conditions are
// also returned as errors.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "velide-applier")

	r, err := newRunner(ctx, opts)
	if err != nil {
		logger.ErrorKV(ctx, "Applier could not start", "error", err)
		return err
	}

	defer upgrade.RemoveMarker()

	err = r.run(ctx)

	logger.InfoKV(ctx, "Applier reached terminal state", "stage", StageEnd)

	return err
}

// newRunner validates options and claims the update marker.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if opts == nil {
		opts = &Options{}
	}

	if opts.AppRoot == "" {
		return nil, errAppRootMissing
	}

	appRoot, err := filepath.Abs(opts.AppRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve application root: %w", err)
	}

	if upgrade.IsUpdateRunning(ctx) {
		return nil, errAlreadyRunning
	}

	if err = upgrade.WriteMarker(); err != nil {
		return nil, fmt.Errorf("write update marker: %w", err)
	}

	stagingPath := opts.StagingPath
	if stagingPath == "" {
		stagingPath = upgrade.StagingPath()
	}

	wait := opts.Wait
	if wait <= 0 {
		wait = DefaultWait
	}

	r := &runner{
		stagingPath: stagingPath,
		appRoot:     appRoot,
		wait:        wait,
		excluded:    make(map[string]struct{}),
	}

	// The applier never moves or overwrites its own executable, even when
	// the staging directory carries a file of the same name.
	r.excluded[config.ApplierExecutableName()] = struct{}{}

	if ownExecutable, execErr := os.Executable(); execErr == nil {
		r.excluded[filepath.Base(ownExecutable)] = struct{}{}
	}

	return r, nil
}

// run drives the stages in order. MOVE failures are carried to the end so
// cleanup and restart still happen; VERIFY_SOURCE failures short-circuit
// straight to END.
func (r *runner) run(ctx context.Context) error {
	r.waitForInvoker(ctx)

	if err := r.verifySource(ctx); err != nil {
		logger.ErrorKV(ctx, "Nothing to apply", "stage", StageVerifySource, "error", err)
		return err
	}

	moveErr := r.move(ctx)
	if moveErr != nil {
		logger.ErrorKV(ctx, "Some files could not be applied", "stage", StageMove, "error", moveErr)
	}

	r.cleanup(ctx)
	r.restart(ctx)

	return moveErr
}

// waitForInvoker sleeps for the configured delay, then warns if the
// middleware still appears to be running. The delay is the synchronization
// mechanism; the process scan only improves the log.
func (r *runner) waitForInvoker(ctx context.Context) {
	logger.InfoKV(ctx, "Waiting for the invoking process to exit", "stage", StageWait, "delay", r.wait)

	timer := time.NewTimer(r.wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	mainExecutable := config.MainExecutableName()

	running, err := proc.IsRunning(mainExecutable)
	if err != nil {
		logger.Warnf(ctx, "Could not inspect running processes: %v", err)
		return
	}

	if running {
		logger.WarnKV(ctx, "Middleware still appears to be running, moved files may be locked",
			"executable", mainExecutable)
	}
}

// verifySource fails fast when the staging directory is absent and loads
// the staged manifest when one is present.
func (r *runner) verifySource(ctx context.Context) error {
	logger.InfoKV(ctx, "Verifying staged payload", "stage", StageVerifySource, "path", r.stagingPath)

	if _, err := os.Stat(r.stagingPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", r.stagingPath, errStagingMissing)
		}

		return fmt.Errorf("stat staging directory: %w", err)
	}

	manifestPath := filepath.Join(r.stagingPath, payload.ManifestFilename)

	manifest, err := payload.Load(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info(ctx, "No staged manifest, applying files without checksum verification")
			return nil
		}

		return fmt.Errorf("read staged manifest: %w", err)
	}

	if err = manifest.Verify(r.stagingPath); err != nil {
		return fmt.Errorf("staged payload is corrupt: %w", err)
	}

	r.manifest = manifest

	logger.InfoKV(ctx, "Staged release verified", "version", manifest.VersionNumber)

	return nil
}

// move walks the staging tree and applies every file over the live
// installation, overwriting unconditionally. Failures are collected so the
// remaining files still get their chance; nothing is rolled back.
func (r *runner) move(ctx context.Context) error {
	logger.InfoKV(ctx, "Moving staged files into the application root",
		"stage", StageMove, "from", r.stagingPath, "to", r.appRoot)

	var moveErr error

	walkErr := filepath.WalkDir(r.stagingPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(r.stagingPath, path)
		if relErr != nil {
			return relErr
		}

		if rel == "." {
			return nil
		}

		target := filepath.Join(r.appRoot, rel)

		if d.IsDir() {
			if mkErr := os.MkdirAll(target, payload.DefaultFileMode); mkErr != nil {
				moveErr = multierr.Append(moveErr, fmt.Errorf("create %s: %w", target, mkErr))
				return fs.SkipDir
			}

			return nil
		}

		if _, found := r.excluded[d.Name()]; found {
			logger.InfoKV(ctx, "Skipping excluded entry", "file", rel)
			return nil
		}

		if applyErr := r.applyFile(ctx, path, target, rel); applyErr != nil {
			moveErr = multierr.Append(moveErr, fmt.Errorf("apply %s: %w", rel, applyErr))
		}

		return nil
	})

	return multierr.Append(moveErr, walkErr)
}

// applyFile replaces one live file with its staged counterpart, verifying
// the checksum when the staged manifest lists the file.
func (r *runner) applyFile(ctx context.Context, stagedPath, targetPath, rel string) error {
	logger.DebugKV(ctx, "Applying file", "file", rel)

	data, err := os.ReadFile(filepath.Clean(stagedPath))
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: payload.DefaultFileMode,
	}

	if r.manifest != nil {
		if checksum, checksumErr := r.manifest.Checksum(rel); checksumErr == nil {
			options.Checksum = checksum
			options.Hash = payload.ChecksumFunction
		}
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	// goupdate keeps a backup of the replaced file; drop it.
	if _, err = os.Stat(targetPath + ".old"); err == nil {
		_ = os.Remove(targetPath + ".old")
	}

	return os.Remove(stagedPath)
}

// cleanup removes the consumed staging directory; leftovers are a warning.
func (r *runner) cleanup(ctx context.Context) {
	logger.InfoKV(ctx, "Removing staging directory", "stage", StageCleanup, "path", r.stagingPath)

	if err := os.RemoveAll(r.stagingPath); err != nil {
		logger.Warnf(ctx, "Staging directory could not be fully removed: %v", err)
	}
}

// restart launches the freshly updated middleware detached, flagging the
// run as just-updated. A missing executable only produces a warning.
func (r *runner) restart(ctx context.Context) {
	executablePath := filepath.Join(r.appRoot, config.MainExecutableName())

	logger.InfoKV(ctx, "Restarting the middleware", "stage", StageRestart, "executable", executablePath)

	if _, err := os.Stat(executablePath); err != nil {
		logger.WarnKV(ctx, "Middleware executable not found, skipping restart",
			"executable", executablePath, "error", err)

		return
	}

	if err := proc.StartDetached(r.appRoot, executablePath, upgrade.UpdatedFlag); err != nil {
		logger.WarnKV(ctx, "Could not restart the middleware",
			"executable", executablePath, "error", err)
	}
}
