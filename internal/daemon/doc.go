// Package daemon coordinates the long-running relay process.
//
// It wires the broker, the persistent-socket transport and the HTTP API into
// a single lifecycle with flock-based locking to prevent multiple instances.
// The HTTP server carries the caller facade (/request), the poll transport
// (/poll, /response) and the read-only diagnostics endpoints (/api/status,
// /api/logs, /api/history).
//
// Keep orchestration here: correlation and queueing live in broker, wire
// formats in envelope and api.
package daemon
