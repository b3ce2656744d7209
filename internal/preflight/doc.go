// Package preflight provides readiness checks for the executables, paths and
// settings a node depends on.
//
// The CLI status command shows these results when the daemon is down, and the
// daemon logs them at startup so a failed launch has an obvious cause.
package preflight
