package upgrade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/velide/middleware-setup/internal/logger"
)

const (
	// MarkerFilename marks that an update is being applied right now to
	// avoid parallel runs.
	MarkerFilename = "velide-update-marker.bin"

	// markerLifetime is the period after which a stale marker is ignored.
	markerLifetime = 30 * time.Second
)

// MarkerPath returns the marker location under the OS temp directory.
func MarkerPath() string {
	return filepath.Join(os.TempDir(), MarkerFilename)
}

// IsUpdateRunning checks presence of the marker file, cleaning up a stale one.
func IsUpdateRunning(ctx context.Context) bool {
	fileInfo, err := os.Stat(MarkerPath())
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The update marker is too old, attempting cleanup")

		if err = os.Remove(MarkerPath()); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read update marker: %v", err)

	return false
}

// WriteMarker creates the marker file.
func WriteMarker() error {
	marker, err := os.Create(MarkerPath())
	if err != nil {
		return err
	}

	return marker.Close()
}

// RemoveMarker deletes the marker file, ignoring a missing one.
func RemoveMarker() {
	if _, err := os.Stat(MarkerPath()); err == nil {
		_ = os.Remove(MarkerPath())
	}
}
