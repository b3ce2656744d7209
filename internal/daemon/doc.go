// Package daemon coordinates the long-running yanode process.
//
// It wires the node manager, job history, metrics, push notifications and the
// local HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. IPC and HTTP callers go through the Daemon so status,
// job and payment views are assembled in one place.
//
// Keep orchestration logic here: daemon supervision lives in the node package
// while the daemon focuses on process-level startup, shutdown and high level
// coordination.
package daemon
