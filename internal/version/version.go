package version

import "fmt"

// Build metadata, overridden via -ldflags "-X ..." by release builds.
var (
	// Version is the semantic version of the setup tools.
	Version = "3.0.0"
	// Commit is the short git SHA of the build, "none" for local builds.
	Commit = "none"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns the bare semantic version. Release manifests record it as
// the payload version.
func Short() string {
	return Version
}

// Full renders the version with its build metadata for the CLI.
func Full() string {
	return fmt.Sprintf("velide setup tools %s (commit %s, built %s)", Version, Commit, BuildTime)
}
