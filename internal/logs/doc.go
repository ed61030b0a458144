// Package logs reads relay daemon logs for the CLI.
//
// StreamClient fetches structured events from the daemon's /api/logs ring and
// powers `relay logs --follow`. Tail reads the on-disk relay.log when the
// daemon is not running, with the same follow semantics.
package logs
