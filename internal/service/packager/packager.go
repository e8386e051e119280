package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/velide/middleware-setup/internal/logger"
	"github.com/velide/middleware-setup/internal/payload"
	"github.com/velide/middleware-setup/internal/upgrade"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ReleaseDir is the directory holding the built middleware payload.
	ReleaseDir string
	// UpdateFolder is the URL where the release will be uploaded; only
	// used for operator guidance in the output.
	UpdateFolder string
	// SigningKeyPath is the PEM private key used to sign the manifest.
	// Empty produces an unsigned release.
	SigningKeyPath string
}

var (
	errUpdateRunning      = errors.New("an update is being applied right now")
	errReleaseDirRequired = errors.New("release directory must be provided")
	errEmptyRelease       = errors.New("release directory contains no files")
)

// packager prepares the release manifest for distribution.
type packager struct {
	// releaseDir is the root of the payload being published.
	releaseDir string
	// updateFolder is where the operator is told to upload the release.
	updateFolder string
	// signingKeyPath is the private key signing the manifest, if any.
	signingKeyPath string
	// manifest is the release description being filled in.
	manifest *payload.Manifest
	// signed records whether a signature file was produced.
	signed bool
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "velide-packager")

	if opts.ReleaseDir == "" {
		return errReleaseDirRequired
	}

	if upgrade.IsUpdateRunning(ctx) {
		return errUpdateRunning
	}

	info, err := os.Stat(opts.ReleaseDir)
	if err != nil {
		return fmt.Errorf("release directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("release directory %s: %w", opts.ReleaseDir, os.ErrInvalid)
	}

	p := &packager{
		releaseDir:     opts.ReleaseDir,
		updateFolder:   opts.UpdateFolder,
		signingKeyPath: opts.SigningKeyPath,
		manifest:       payload.NewManifest(),
	}

	if err = p.run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// run fills and writes the release manifest.
func (p *packager) run(ctx context.Context) error {
	logger.InfoKV(ctx, "Hashing release files", "release_dir", p.releaseDir)

	if err := p.manifest.Scan(p.releaseDir); err != nil {
		return err
	}

	if len(p.manifest.Files) == 0 {
		return fmt.Errorf("%s: %w", p.releaseDir, errEmptyRelease)
	}

	manifestPath := filepath.Join(p.releaseDir, payload.ManifestFilename)

	logger.InfoKV(ctx, "Saving release manifest",
		"path", manifestPath, "version", p.manifest.VersionNumber, "files", len(p.manifest.Files))

	if err := p.manifest.Save(manifestPath); err != nil {
		return err
	}

	if err := p.signManifest(ctx, manifestPath); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// signManifest writes a detached signature over the saved manifest bytes.
// The payload files are covered through their manifest checksums, so one
// signature authenticates the whole release.
func (p *packager) signManifest(ctx context.Context, manifestPath string) error {
	if p.signingKeyPath == "" {
		logger.Info(ctx, "No signing key provided, publishing an unsigned release")
		return nil
	}

	key, err := payload.LoadSigningKey(p.signingKeyPath)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	manifestBytes, err := os.ReadFile(filepath.Clean(manifestPath))
	if err != nil {
		return err
	}

	signature, err := payload.Sign(manifestBytes, key)
	if err != nil {
		return err
	}

	signaturePath := filepath.Join(p.releaseDir, payload.SignatureFilename)
	if err = os.WriteFile(signaturePath, []byte(signature), payload.DefaultFileMode); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}

	p.signed = true

	logger.InfoKV(ctx, "Signed release manifest", "path", signaturePath)

	return nil
}

// printNextSteps logs human-readable guidance for publishing the release.
func (p *packager) printNextSteps(ctx context.Context) {
	files := make([]string, 0, len(p.manifest.Files)+1)
	for fileName := range p.manifest.Files {
		files = append(files, fileName)
	}

	files = append(files, payload.ManifestFilename)
	if p.signed {
		files = append(files, payload.SignatureFilename)
	}

	sort.Strings(files)

	var builder strings.Builder

	builder.WriteString("Upload the following files")

	if p.updateFolder != "" {
		builder.WriteString(" to ")
		builder.WriteString(p.updateFolder)
	}

	builder.WriteString(":\n")

	for i, name := range files {
		if i > 0 {
			builder.WriteString(",\n")
		}

		builder.WriteString(name)
	}

	builder.WriteString("\nInstalled middlewares pick the release up via velide-updater.")

	logger.Info(ctx, builder.String())
}
