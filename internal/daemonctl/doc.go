// Package daemonctl starts, stops and restarts a background relay daemon on
// behalf of the CLI. Readiness and shutdown are observed through the daemon's
// HTTP status endpoint; the pid file written by daemonrun is the fallback
// when the process has to be killed.
package daemonctl
