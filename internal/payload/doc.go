// Package payload models the release manifest: the version of a published
// middleware build and the checksum of every file it ships. The packager
// produces it, the updater compares against it, and the applier verifies
// staged files with it before moving them into place.
package payload
