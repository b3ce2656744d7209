// Package notifications delivers node events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Each
// event kind can be switched off individually. Watch turns node status and job
// updates into events so callers never format messages themselves.
package notifications
