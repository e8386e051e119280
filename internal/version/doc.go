// Package version exposes build metadata injected via ldflags and a
// reusable cobra `version` subcommand shared by all setup binaries.
// The applier also compares Short() against a staged release to report
// what it is about to install.
package version
