// Package job models the single unit of work a provider node is executing.
//
// A Job is immutable: every transition returns a new value, or the receiver
// itself when nothing changed, so a pointer comparison detects no-op updates.
// Status only moves forward (Idle, DownloadingModel, Computing), usage never
// decreases, reward is recomputed from usage and the price snapshot taken at
// creation, payment status is replaced wholesale and payment confirmations
// are appended once per confirmation identifier.
//
// Tracker publishes the current job through an atomic pointer so readers
// never observe a partially applied update.
package job
