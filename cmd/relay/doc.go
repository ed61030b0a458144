// Command relay is the operator CLI for the relay broker daemon.
//
// It runs the daemon in the foreground, inspects status, history and logs,
// sends one-off calls through the broker and can act as a simple poll
// responder for smoke testing.
package main
