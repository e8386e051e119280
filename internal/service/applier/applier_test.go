package applier

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velide/middleware-setup/internal/config"
	"github.com/velide/middleware-setup/internal/payload"
)

// testOptions builds fast applier options over isolated directories.
// TMPDIR is redirected so the update marker of one test cannot collide
// with another.
func testOptions(t *testing.T) (*Options, string, string) {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())

	base := t.TempDir()
	staging := filepath.Join(base, "staging")
	appRoot := filepath.Join(base, "app")

	require.NoError(t, os.MkdirAll(appRoot, 0o755))

	return &Options{
		StagingPath: staging,
		AppRoot:     appRoot,
		Wait:        10 * time.Millisecond,
	}, staging, appRoot
}

// TestRun_MovesStagedFilesAndCleansUp is the end-to-end happy path:
// the staged payload lands in the application root byte for byte, the
// staging directory disappears, and the missing middleware executable
// only downgrades the restart to a warning.
func TestRun_MovesStagedFilesAndCleansUp(t *testing.T) {
	opts, staging, appRoot := testOptions(t)

	newBinary := []byte("app-binary-v2")
	template := []byte("target_system: {{ TARGET_SYSTEM }}\n")

	require.NoError(t, os.MkdirAll(filepath.Join(staging, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "app.bin"), newBinary, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "config", "template.txt"), template, 0o644))

	// Older live files are overwritten unconditionally.
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "app.bin"), []byte("app-binary-v1"), 0o755))

	require.NoError(t, Run(context.Background(), opts))

	got, err := os.ReadFile(filepath.Join(appRoot, "app.bin"))
	require.NoError(t, err)
	require.Equal(t, newBinary, got)

	got, err = os.ReadFile(filepath.Join(appRoot, "config", "template.txt"))
	require.NoError(t, err)
	require.Equal(t, template, got)

	_, err = os.Stat(staging)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_MissingStagingReportsAndStops verifies the fail-fast branch:
// no staging directory means no MOVE and no RESTART, just a visible error.
func TestRun_MissingStagingReportsAndStops(t *testing.T) {
	opts, _, appRoot := testOptions(t)

	sentinel := []byte("untouched")
	require.NoError(t, os.WriteFile(filepath.Join(appRoot, "app.bin"), sentinel, 0o755))

	err := Run(context.Background(), opts)
	require.ErrorIs(t, err, errStagingMissing)

	got, readErr := os.ReadFile(filepath.Join(appRoot, "app.bin"))
	require.NoError(t, readErr)
	require.Equal(t, sentinel, got)
}

// TestRun_NeverOverwritesItself stages files carrying the applier's own
// executable names and checks the live copies survive.
func TestRun_NeverOverwritesItself(t *testing.T) {
	opts, staging, appRoot := testOptions(t)

	ownExecutable, err := os.Executable()
	require.NoError(t, err)

	names := []string{filepath.Base(ownExecutable), config.ApplierExecutableName()}

	require.NoError(t, os.MkdirAll(staging, 0o755))

	liveContent := []byte("live-applier")
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(staging, name), []byte("staged-impostor"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(appRoot, name), liveContent, 0o755))
	}

	require.NoError(t, Run(context.Background(), opts))

	for _, name := range names {
		got, readErr := os.ReadFile(filepath.Join(appRoot, name))
		require.NoError(t, readErr)
		require.Equal(t, liveContent, got, "%s must not be overwritten", name)
	}
}

// TestRun_CorruptStagedPayloadAborts verifies a staged manifest gates the
// move: a checksum mismatch aborts before any file reaches the app root.
func TestRun_CorruptStagedPayloadAborts(t *testing.T) {
	opts, staging, appRoot := testOptions(t)

	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "app.bin"), []byte("good"), 0o755))

	manifest := payload.NewManifest()
	require.NoError(t, manifest.Scan(staging))
	require.NoError(t, manifest.Save(filepath.Join(staging, payload.ManifestFilename)))

	// Tamper after the manifest was produced.
	require.NoError(t, os.WriteFile(filepath.Join(staging, "app.bin"), []byte("evil"), 0o755))

	err := Run(context.Background(), opts)
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(appRoot, "app.bin"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestStageString keeps the log names stable.
func TestStageString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "WAIT", StageWait.String())
	require.Equal(t, "VERIFY_SOURCE", StageVerifySource.String())
	require.Equal(t, "MOVE", StageMove.String())
	require.Equal(t, "CLEANUP", StageCleanup.String())
	require.Equal(t, "RESTART", StageRestart.String())
	require.Equal(t, "END", StageEnd.String())
}
