// Package packager produces the release manifest for a built middleware
// payload: the version and a checksum for every shipped file.
package packager
