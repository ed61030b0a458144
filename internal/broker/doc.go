// Package broker relays synchronous JSON-RPC calls to a responder that can
// only reach out, never be reached.
//
// A Broker owns the pending queue, the correlation table, the liveness
// monitor and the stats registry. Callers block in Call while the
// request waits in the queue, travels to the responder over whichever
// transport dequeues it first, and comes back through Submit. Both
// transports consume the same Responder surface, so a reply may arrive on a
// different transport than the request left on.
package broker
