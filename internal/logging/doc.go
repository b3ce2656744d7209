// Package logging assembles the structured slog loggers used by yanode.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// attribute helpers every component uses so daemon output, supervisor events
// and polling failures share one shape. WarnWithContext enforces the
// event_type/error_hint/impact triple on warnings that need operator attention.
//
// Tests and wiring code that cannot fail should use NewNop.
package logging
