// Package history persists every job this node has worked on.
//
// The store is a single SQLite database (WAL mode) holding one row per job
// keyed by agreement ID. Rows are upserted from published job snapshots and
// stamped with finished_at when the job is cleared, so ListJobs keeps working
// across daemon restarts. Busy errors are retried with a short backoff, the
// same way every writer in this repository handles SQLite contention.
package history
