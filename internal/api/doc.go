// Package api defines wire-format types and converters for the IPC and HTTP
// API layer, and the HTTP router that serves them.
//
// # Key Types
//
// NodeStatus: node lifecycle status, identity, pricing, current job, activity
// counters and live daemon processes.
//
// Job/JobRecord: transport representation of the current job and of stored
// history entries.
//
// Event: one status or job change pushed over the websocket stream.
//
// # Converters
//
// FromJob, FromSnapshot, FromRecord, FromPaymentStatus and FromDaemons turn
// node and history models into DTOs.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Money amounts are decimal strings so no
// precision is lost in JavaScript consumers. Timestamps use RFC3339 with
// milliseconds.
package api
