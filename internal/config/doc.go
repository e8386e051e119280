// Package config defines the settings file shared by the setup binaries and
// the well-known names of the installed layout: the resources directory, the
// generated middleware config, its template, and the executables the applier
// restarts or excludes.
package config
