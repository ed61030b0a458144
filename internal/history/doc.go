// Package history persists one record per relayed call in SQLite.
//
// The broker never writes to the database directly. It hands finished calls
// to a Recorder, which buffers them on a channel and drains them into the
// Store from a single goroutine; a full buffer drops the record rather than
// delaying the caller. The daemon exposes recent entries through
// /api/history and prunes old ones at startup.
package history
