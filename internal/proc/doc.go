// Package proc wraps the process plumbing the setup tools share: launching
// executables detached from the current process and inspecting or stopping
// running middleware instances by executable name.
package proc
