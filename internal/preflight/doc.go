// Package preflight provides readiness checks for the filesystem paths and
// listen addresses relay depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll before starting the daemon and refuses to start
//     when any check fails.
//   - The CLI "relay status" command uses CheckDaemon to report whether the
//     daemon answers on its HTTP bind.
package preflight
