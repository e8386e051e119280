package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/payload"
	"github.com/velide/middleware-setup/internal/service/applier"
	"github.com/velide/middleware-setup/internal/service/packager"
	"github.com/velide/middleware-setup/internal/service/updater"
	"github.com/velide/middleware-setup/internal/upgrade"
)

// TestReleaseLifecycle_PackageStageApply walks a release through the whole
// pipeline: the packager publishes a manifest, the updater stages the
// changed files from an HTTP update folder, and the applier moves them
// into the live installation.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestReleaseLifecycle_PackageStageApply(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	ctx := context.Background()

	// Publish a release.
	releaseDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(releaseDir, config.MainExecutableName()), []byte("middleware v3"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(releaseDir, config.ResourcesDirName), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(releaseDir, config.ResourcesDirName, config.ConfigTemplateFilename),
		[]byte("target_system: {{ TARGET_SYSTEM }}\n"), 0o644))

	require.NoError(t, packager.Run(ctx, &packager.Options{ReleaseDir: releaseDir}))

	server := httptest.NewServer(http.FileServer(http.Dir(releaseDir)))
	t.Cleanup(server.Close)

	// The installed tree runs an older build with no release manifest.
	installRoot := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(installRoot, config.MainExecutableName()), []byte("middleware v2"), 0o755))

	settingsPath := filepath.Join(t.TempDir(), config.DefaultSettingsFilename)
	require.NoError(t, config.Save(settingsPath, &config.Settings{
		InstallRoot:        installRoot,
		ServerUpdateFolder: server.URL,
	}))

	// The applier executable is not installed, so the updater stops at the
	// handoff; the staged payload must be complete by then.
	err := updater.Run(ctx, &updater.Options{SettingsPath: settingsPath})
	require.ErrorContains(t, err, "launch applier")

	staged, err := payload.Load(filepath.Join(upgrade.StagingPath(), payload.ManifestFilename))
	require.NoError(t, err)
	require.NoError(t, staged.Verify(upgrade.StagingPath()))

	// Apply the staged release.
	require.NoError(t, applier.Run(ctx, &applier.Options{
		StagingPath: upgrade.StagingPath(),
		AppRoot:     installRoot,
		Wait:        10 * time.Millisecond,
	}))

	installed, err := os.ReadFile(filepath.Join(installRoot, config.MainExecutableName()))
	require.NoError(t, err)
	require.Equal(t, "middleware v3", string(installed))

	template, err := os.ReadFile(config.ConfigTemplatePath(installRoot))
	require.NoError(t, err)
	require.Equal(t, "target_system: {{ TARGET_SYSTEM }}\n", string(template))

	_, err = os.Stat(upgrade.StagingPath())
	require.True(t, os.IsNotExist(err), "staging directory must be removed after apply")
}
