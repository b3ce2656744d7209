// Package activity keeps the current job in step with the provider daemon.
//
// Two loops run while the node is Ready. The activity loop polls activity
// states and usage, creates a job when an activity appears, advances it as
// the activity deploys and starts executing, and clears it when the activity
// disappears. The invoice loop polls invoice events and payments and merges
// them into the job they belong to, or into the stored history record when
// that job is no longer current.
//
// Decisions live in the pure functions of reconcile.go; loop.go only fetches,
// applies each decision as one atomic job replacement, and records it.
// Polling errors never escape a cycle: they are logged at debug level,
// counted, and retried on the next tick behind a circuit breaker.
package activity
