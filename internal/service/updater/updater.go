package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	gover "github.com/hashicorp/go-version"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/logger"
	"github.com/velide/middleware-setup/internal/payload"
	"github.com/velide/middleware-setup/internal/proc"
	"github.com/velide/middleware-setup/internal/upgrade"
)

var (
	errAlreadyRunning = errors.New("an update is already running")
	errNoUpdateFolder = errors.New("no update folder configured")
	errBadHTTPStatus  = errors.New("unexpected http status")
	errEmptyManifest  = errors.New("remote manifest lists no files")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// SettingsPath is the optional path to the setup settings YAML file.
	SettingsPath string
}

// runner holds the state of a single update check.
type runner struct {
	settings     *config.Settings
	client       *http.Client
	remote       *payload.Manifest // Manifest fetched from the update folder.
	localVersion string            // Version recorded by the last applied release.
}

// Run checks the update folder for a newer release, stages the changed
// files, and hands off to the applier. It is the public entry point for
// the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "velide-updater")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer upgrade.RemoveMarker()

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Updater run failed", "error", err)
		return err
	}

	logger.Info(ctx, "Updater completed")

	return nil
}

// newRunner loads settings and claims the update marker so two updaters
// (or an updater and an applier) never run at once.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if upgrade.IsUpdateRunning(ctx) {
		return nil, errAlreadyRunning
	}

	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = config.DefaultSettingsFilename
	}

	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	if settings.ServerUpdateFolder == "" {
		return nil, errNoUpdateFolder
	}

	if err = upgrade.WriteMarker(); err != nil {
		return nil, err
	}

	return &runner{
		settings: settings,
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

// run executes the check-download-handoff workflow:
// 1) Read the locally recorded release version.
// 2) Fetch the remote manifest.
// 3) Compare versions, falling back to checksums when they match.
// 4) Download differing files into the staging directory.
// 5) Stop the middleware and launch the applier.
func (r *runner) run(ctx context.Context) error {
	r.detectLocalVersion(ctx)

	logger.InfoKV(ctx, "Fetching remote manifest", "update_folder", r.settings.ServerUpdateFolder)

	if err := r.fetchRemoteManifest(ctx); err != nil {
		return fmt.Errorf("fetch remote manifest: %w", err)
	}

	changed, err := r.changedFiles(ctx)
	if err != nil {
		return fmt.Errorf("compare release files: %w", err)
	}

	if !r.versionUpdateNeeded(ctx) && len(changed) == 0 {
		logger.Info(ctx, "No update required - version and files are current")
		return nil
	}

	// A version bump with identical files needs no applier run; recording
	// the new version locally is enough.
	if len(changed) == 0 {
		logger.InfoKV(ctx, "Release version changed without file changes, recording it",
			"version", r.remote.VersionNumber)

		return r.remote.Save(filepath.Join(r.settings.InstallRoot, payload.ManifestFilename))
	}

	logger.InfoKV(ctx, "Staging update files", "count", len(changed))

	stagingPath, err := r.stageFiles(ctx, changed)
	if err != nil {
		return fmt.Errorf("stage update files: %w", err)
	}

	return r.handOffToApplier(ctx, stagingPath)
}

// detectLocalVersion reads the version of the last applied release from
// the manifest left in the install root. Absence just means first update.
func (r *runner) detectLocalVersion(ctx context.Context) {
	manifestPath := filepath.Join(r.settings.InstallRoot, payload.ManifestFilename)

	local, err := payload.Load(manifestPath)
	if err != nil {
		logger.InfoKV(ctx, "No local release manifest, treating as first update", "path", manifestPath)
		return
	}

	r.localVersion = local.VersionNumber
}

// fetchRemoteManifest downloads the release manifest, checks its RSA
// signature when a verify key is configured, and parses it.
func (r *runner) fetchRemoteManifest(ctx context.Context) error {
	body, err := r.getFileFromServer(ctx, payload.ManifestFilename)
	if err != nil {
		return err
	}

	if err = r.verifyManifestSignature(ctx, body); err != nil {
		return err
	}

	manifest, err := payload.Parse(body)
	if err != nil {
		return err
	}

	if len(manifest.Files) == 0 {
		return errEmptyManifest
	}

	r.remote = manifest

	return nil
}

// verifyManifestSignature checks the detached signature published next to
// the manifest. Files need no separate signatures: their checksums are
// inside the signed manifest. Without a configured key nothing is checked
// and downloads rely on checksums alone.
func (r *runner) verifyManifestSignature(ctx context.Context, manifestBytes []byte) error {
	if r.settings.SigningPublicKey == "" {
		logger.Debug(ctx, "No signing public key configured, skipping signature verification")
		return nil
	}

	key, err := payload.LoadVerifyKey(r.settings.SigningPublicKey)
	if err != nil {
		return fmt.Errorf("load signing public key: %w", err)
	}

	signature, err := r.getFileFromServer(ctx, payload.SignatureFilename)
	if err != nil {
		return fmt.Errorf("fetch manifest signature: %w", err)
	}

	if err = payload.VerifySignature(manifestBytes, string(signature), key); err != nil {
		return fmt.Errorf("release manifest rejected: %w", err)
	}

	logger.Info(ctx, "Release manifest signature verified")

	return nil
}

// versionUpdateNeeded compares local and remote release versions.
// Unparseable versions count as an update so a broken install can heal.
func (r *runner) versionUpdateNeeded(ctx context.Context) bool {
	if r.localVersion == "" {
		logger.Info(ctx, "No local version detected, update needed")
		return true
	}

	local, err := gover.NewVersion(r.localVersion)
	if err != nil {
		logger.Warnf(ctx, "Local version %q is not semantic: %v", r.localVersion, err)
		return true
	}

	remote, err := gover.NewVersion(r.remote.VersionNumber)
	if err != nil {
		logger.Warnf(ctx, "Remote version %q is not semantic: %v", r.remote.VersionNumber, err)
		return true
	}

	if local.LessThan(remote) {
		logger.InfoKV(ctx, "Newer release available", "local", local, "remote", remote)
		return true
	}

	logger.InfoKV(ctx, "Versions match, checking file integrity", "version", local)

	return false
}

// changedFiles returns the relative paths whose installed checksum differs
// from the remote manifest. Missing local files always count as changed.
func (r *runner) changedFiles(_ context.Context) ([]string, error) {
	changed := make([]string, 0, len(r.remote.Files))

	for rel := range r.remote.Files {
		want, err := r.remote.Checksum(rel)
		if err != nil {
			return nil, err
		}

		localPath := filepath.Join(r.settings.InstallRoot, filepath.FromSlash(rel))

		if _, err = os.Stat(localPath); err != nil {
			if os.IsNotExist(err) {
				changed = append(changed, rel)
				continue
			}

			return nil, err
		}

		got, err := payload.FileChecksum(localPath)
		if err != nil {
			return nil, err
		}

		if !bytes.Equal(want, got) {
			changed = append(changed, rel)
		}
	}

	return changed, nil
}

// stageFiles downloads the changed files into the staging directory and
// writes a staged manifest covering exactly what was downloaded, so the
// applier can verify it.
func (r *runner) stageFiles(ctx context.Context, changed []string) (string, error) {
	stagingPath, err := upgrade.Destination(true, r.settings.InstallRoot)
	if err != nil {
		return "", err
	}

	staged := &payload.Manifest{
		VersionNumber: r.remote.VersionNumber,
		Files:         make(map[string]string, len(changed)),
	}

	for _, rel := range changed {
		if err = r.downloadFile(ctx, stagingPath, rel); err != nil {
			return "", err
		}

		staged.Files[rel] = r.remote.Files[rel]

		logger.InfoKV(ctx, "Staged file", "file", rel)
	}

	if err = staged.Save(filepath.Join(stagingPath, payload.ManifestFilename)); err != nil {
		return "", fmt.Errorf("write staged manifest: %w", err)
	}

	return stagingPath, nil
}

// downloadFile fetches one payload file into the staging tree.
func (r *runner) downloadFile(ctx context.Context, stagingPath, rel string) error {
	body, err := r.getFileFromServer(ctx, rel)
	if err != nil {
		return err
	}

	target := filepath.Join(stagingPath, filepath.FromSlash(rel))
	if err = os.MkdirAll(filepath.Dir(target), payload.DefaultFileMode); err != nil {
		return err
	}

	return os.WriteFile(target, body, payload.DefaultFileMode)
}

// getFileFromServer fetches a file from the update folder.
func (r *runner) getFileFromServer(ctx context.Context, fileName string) ([]byte, error) {
	serverUpdateURL, err := url.Parse(r.settings.ServerUpdateFolder)
	if err != nil {
		return nil, err
	}

	// path.Join normalizes duplicate slashes when composing the URL path.
	serverUpdateURL.Path = path.Join(serverUpdateURL.Path, fileName)
	finalURL := serverUpdateURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return io.ReadAll(response.Body)
}

// handOffToApplier stops the running middleware, releases the update
// marker, and launches the applier detached.
func (r *runner) handOffToApplier(ctx context.Context, stagingPath string) error {
	mainExecutable := config.MainExecutableName()

	logger.InfoKV(ctx, "Stopping the middleware before applying", "executable", mainExecutable)

	if err := proc.TerminateByName(mainExecutable); err != nil {
		logger.Warnf(ctx, "Could not stop the middleware: %v", err)
	}

	applierPath := filepath.Join(r.settings.InstallRoot, config.ApplierExecutableName())

	logger.InfoKV(ctx, "Launching the update applier", "executable", applierPath)

	// The applier claims its own marker; release ours before it starts.
	upgrade.RemoveMarker()

	err := proc.StartDetached(r.settings.InstallRoot, applierPath,
		"--staging", stagingPath, "--root", r.settings.InstallRoot)
	if err != nil {
		return fmt.Errorf("launch applier: %w", err)
	}

	return nil
}
