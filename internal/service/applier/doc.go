// Package applier moves a staged release over the live installation and
// restarts the middleware. The flow is a linear state machine:
//
//	WAIT → VERIFY_SOURCE → MOVE → CLEANUP → RESTART → END
//
// It runs as its own process after the installer (or the middleware) has
// staged new files and exited, and excludes its own executable from the
// move so it never overwrites the code it is running.
package applier
