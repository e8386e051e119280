// Package upgrade detects whether the installer was launched by the
// middleware to self-update and, if so, redirects payload deployment into a
// predictable staging directory under the OS temp directory. The applier
// later consumes that directory and deletes it.
package upgrade
