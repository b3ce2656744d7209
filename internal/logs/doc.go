// Package logs tails the node log file for the CLI and the control socket.
//
// Tail reads with bounded memory, supports a negative offset for "last N
// lines", and waits for new lines in follow mode. The current log is a
// symlink that moves to a fresh file on every run, so an offset beyond the
// end of the file restarts from the beginning instead of stalling.
package logs
