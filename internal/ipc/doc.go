// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server wraps the daemon; node views reuse the api package types so the
// socket and the HTTP API report the same shapes.
package ipc
