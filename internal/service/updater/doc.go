// Package updater checks the configured update folder for a newer
// middleware release, downloads the files that changed into the staging
// directory, and launches the applier to install them.
package updater
