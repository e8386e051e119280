// Package setup orchestrates the installer flow: it detects whether the
// middleware launched it to self-update, deploys the payload either into
// the live install root or into the staging directory, runs the
// interactive configuration on fresh installs, and hands staged upgrades
// to the applier.
package setup
