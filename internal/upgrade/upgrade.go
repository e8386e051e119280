package upgrade

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FlagKey is the argument key the middleware passes when it relaunches
	// the installer to self-update. Only the exact value "1" enables
	// upgrade mode.
	FlagKey = "upgrade"

	// UpdatedFlag is passed to the restarted middleware so it can run any
	// first-start-after-update behavior.
	UpdatedFlag = "--updated=1"

	// StagingDirName is the fixed staging directory name under the OS temp
	// directory. It is deliberately not randomized: re-running an upgrade
	// reuses the same path.
	StagingDirName = "velide-update-staging"

	// stagingDirMode is the permission mode for the staging directory tree.
	stagingDirMode os.FileMode = 0o755
)

// Detect reports whether the argument list requests upgrade mode.
// The key match is case-insensitive and tolerates "/", "-" and "--"
// prefixes; the value must be exactly "1". Malformed arguments never
// fail, they just don't count as an upgrade request.
func Detect(args []string) bool {
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			continue
		}

		key = strings.TrimLeft(key, "-/")
		if !strings.EqualFold(key, FlagKey) {
			continue
		}

		if value == "1" {
			return true
		}
	}

	return false
}

// StagingPath returns the predictable staging location under the OS temp directory.
func StagingPath() string {
	return filepath.Join(os.TempDir(), StagingDirName)
}

// Destination resolves where payload files are deployed. In upgrade mode
// files are staged under the temp directory so the running middleware keeps
// its locked files untouched; otherwise they go straight to the install root.
// A staging directory that cannot be created aborts the whole install.
func Destination(upgradeMode bool, installRoot string) (string, error) {
	if !upgradeMode {
		return installRoot, nil
	}

	staging := StagingPath()
	if err := os.MkdirAll(staging, stagingDirMode); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", staging, err)
	}

	return staging, nil
}
