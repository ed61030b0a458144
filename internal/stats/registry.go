// Package stats keeps the broker's call counters and its in-memory log ring.
package stats

import (
	"context"
	"log/slog"
	"sync/atomic"

	"relay/internal/logging"
)

// Counters is a snapshot of the broker's monotonic counters.
type Counters struct {
	Total     uint64
	Succeeded uint64
	Failed    uint64
	TimedOut  uint64
	// Unmatched counts results whose token was unknown or already settled.
	Unmatched uint64
	// Delivered counts requests handed to a responder transport.
	Delivered uint64
}

// Settled is the number of calls that reached a final outcome.
func (c Counters) Settled() uint64 {
	return c.Succeeded + c.Failed + c.TimedOut
}

// Registry owns the counters and the log ring.
type Registry struct {
	total     atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	unmatched atomic.Uint64
	delivered atomic.Uint64

	hub    *logging.StreamHub
	logger *slog.Logger
}

// New returns a registry. When hub is nil a ring of capacity events is
// created and base is teed into it. A non-nil hub is assumed to already be
// fed by base, as the daemon logger is through logging.Options.Stream.
func New(base *slog.Logger, hub *logging.StreamHub, capacity int) *Registry {
	if base == nil {
		base = logging.NewNop()
	}
	logger := base
	if hub == nil {
		hub = logging.NewStreamHub(capacity)
		logger = logging.TeeLogger(base, logging.NewStreamHandler(hub, slog.LevelInfo))
	}
	return &Registry{hub: hub, logger: logger}
}

// IncTotal counts a call entering the broker.
func (r *Registry) IncTotal() { r.total.Add(1) }

// IncSucceeded counts a call answered with a result.
func (r *Registry) IncSucceeded() { r.succeeded.Add(1) }

// IncFailed counts a call that ended in an error envelope, malformed input,
// cancellation or shutdown.
func (r *Registry) IncFailed() { r.failed.Add(1) }

// IncTimedOut counts a call whose deadline passed before a result arrived.
func (r *Registry) IncTimedOut() { r.timedOut.Add(1) }

// IncUnmatched counts a result whose token was unknown or already settled.
func (r *Registry) IncUnmatched() { r.unmatched.Add(1) }

// IncDelivered counts a request handed to a responder transport.
func (r *Registry) IncDelivered() { r.delivered.Add(1) }

// Snapshot returns the current counter values.
func (r *Registry) Snapshot() Counters {
	return Counters{
		Total:     r.total.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		TimedOut:  r.timedOut.Load(),
		Unmatched: r.unmatched.Load(),
		Delivered: r.delivered.Load(),
	}
}

// Logger returns a logger whose records land in the ring as well as in base.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Record appends a log event to the ring and forwards it to base.
func (r *Registry) Record(level slog.Level, msg string, attrs ...logging.Attr) {
	r.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Hub exposes the log ring for /api/logs and subscribers.
func (r *Registry) Hub() *logging.StreamHub {
	return r.hub
}
