// Package wizard drives the interactive configuration phase of a fresh
// install. The flow is an explicit ordered list of typed steps with
// per-step skip and validation predicates, and its output is an immutable
// parameter set handed to config generation.
package wizard
