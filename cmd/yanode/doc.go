// Package main hosts the yanode CLI entrypoint and command graph.
//
// The Cobra command tree runs the node daemon in the foreground, launches it
// detached, and translates the remaining invocations (status, jobs, payment,
// logs, notifications) into IPC calls against the running daemon. Config
// resolution and socket discovery live here so subcommands stay small.
package main
