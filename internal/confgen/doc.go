// Package confgen generates the middleware configuration file from a
// template on first install. The central invariant: a config that already
// exists is never rewritten, so user settings survive upgrades.
package confgen
