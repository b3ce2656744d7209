// Package supervisor starts and stops the node's daemon processes.
//
// A Supervisor owns one Handle per Role. Start spawns the executable with a
// composed environment, streams its output into the logger and arranges for
// the kernel to kill it if this process dies (Linux parent-death signal).
// Stop sends an interrupt, waits up to a deadline, then kills the whole
// process group. Every handle reports its exit exactly once to the
// registered exit handlers, flagged as solicited when it follows a Stop.
package supervisor
