package proc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStartDetached_ChildSurvivesCallerCancellation launches a child the
// way the services do right before returning, cancels the caller's context
// immediately (the cmd layer's deferred signal stop), and checks the child
// still finishes its work.
func TestStartDetached_ChildSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("test script relies on /bin/sh")
	}

	marker := filepath.Join(t.TempDir(), "restarted")

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, StartDetached("", "/bin/sh", "-c", "sleep 0.2; touch "+marker))
	cancel()
	<-ctx.Done()

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "detached child must outlive the caller's context")
}

// TestIsRunning_SelfIsIgnored ensures the calling process never matches itself.
func TestIsRunning_SelfIsIgnored(t *testing.T) {
	t.Parallel()

	exe, err := os.Executable()
	require.NoError(t, err)

	// Only this test binary carries this name; since self is skipped,
	// the answer must come from other processes only.
	running, err := IsRunning(filepath.Base(exe) + "-does-not-exist")
	require.NoError(t, err)
	require.False(t, running)
}
