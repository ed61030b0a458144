package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relay/internal/correlation"
	"relay/internal/envelope"
	"relay/internal/history"
	"relay/internal/liveness"
	"relay/internal/logging"
	"relay/internal/pending"
	"relay/internal/stats"
)

// Transport names reported by the built-in responder transports.
const (
	TransportPoll   = "poll"
	TransportSocket = "socket"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultLogCapacity    = 100
)

// Responder is the surface both responder transports drive.
type Responder interface {
	// TryNext hands out the oldest pending request without blocking.
	TryNext() (envelope.Request, bool)
	// Next blocks until a request is pending or ctx ends.
	Next(ctx context.Context) (envelope.Request, error)
	// Submit routes a responder reply to its caller. It reports whether the
	// token matched a waiting call.
	Submit(resp envelope.Response, source string) bool
	// Touch records responder contact.
	Touch(source string)
}

// HistorySink receives one entry per finished call.
type HistorySink interface {
	Record(history.Entry) bool
}

// Options configures a Broker.
type Options struct {
	RequestTimeout    time.Duration
	MaxRequestTimeout time.Duration
	LivenessThreshold time.Duration
	LogCapacity       int
	Logger            *slog.Logger
	// LogHub is the ring backing /api/logs. Logger must already publish to it.
	LogHub  *logging.StreamHub
	History HistorySink
	Now     func() time.Time
}

// Status is a point-in-time view of the broker.
type Status struct {
	Liveness   liveness.State
	Counters   stats.Counters
	QueueDepth int
	InFlight   int
	StartedAt  time.Time
	Running    bool
}

// Broker relays calls between callers and the responder.
type Broker struct {
	queue    *pending.Queue
	table    *correlation.Table
	monitor  *liveness.Monitor
	registry *stats.Registry
	history  HistorySink
	logger   *slog.Logger
	now      func() time.Time

	requestTimeout    time.Duration
	maxRequestTimeout time.Duration

	lifetime context.Context
	stop     context.CancelFunc

	mu        sync.Mutex
	startedAt time.Time
	running   bool
	stopped   bool
}

// New constructs a broker. It accepts calls immediately; Start ties its
// lifetime to a context.
func New(opts Options) *Broker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxTimeout := max(opts.MaxRequestTimeout, timeout)
	capacity := opts.LogCapacity
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}

	registry := stats.New(opts.Logger, opts.LogHub, capacity)
	lifetime, stop := context.WithCancel(context.Background())
	return &Broker{
		queue:             pending.New(),
		table:             correlation.New(),
		monitor:           liveness.New(opts.LivenessThreshold, liveness.WithClock(now)),
		registry:          registry,
		history:           opts.History,
		logger:            logging.NewComponentLogger(registry.Logger(), "broker"),
		now:               now,
		requestTimeout:    timeout,
		maxRequestTimeout: maxTimeout,
		lifetime:          lifetime,
		stop:              stop,
	}
}

// Start marks the broker running and stops it when ctx ends.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrStopped
	}
	if b.running {
		return nil
	}
	b.running = true
	b.startedAt = b.now()
	context.AfterFunc(ctx, b.Stop)
	b.logger.Info("broker started",
		logging.String(logging.FieldEventType, "broker_started"),
		logging.Duration("timeout", b.requestTimeout),
		logging.Duration("liveness_threshold", b.monitor.Snapshot().Threshold),
	)
	return nil
}

// Stop fails every in-flight call with ErrStopped and closes the queue.
// Blocked Next callers return pending.ErrClosed.
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.running = false
	b.mu.Unlock()

	b.stop()
	dropped := b.queue.Close()
	b.logger.Info("broker stopped",
		logging.String(logging.FieldEventType, "broker_stopped"),
		logging.Int("pending", len(dropped)),
	)
}

// Done is closed once the broker stops.
func (b *Broker) Done() <-chan struct{} {
	return b.lifetime.Done()
}

// RequestTimeout returns the default call timeout.
func (b *Broker) RequestTimeout() time.Duration { return b.requestTimeout }

// MaxRequestTimeout returns the cap applied to per-call timeouts.
func (b *Broker) MaxRequestTimeout() time.Duration { return b.maxRequestTimeout }

// Logger returns the broker logger, which also feeds the log ring.
func (b *Broker) Logger() *slog.Logger { return b.registry.Logger() }

// Hub exposes the log ring.
func (b *Broker) Hub() *logging.StreamHub { return b.registry.Hub() }

// Stats returns the current counters.
func (b *Broker) Stats() stats.Counters { return b.registry.Snapshot() }

// Liveness returns the current responder liveness.
func (b *Broker) Liveness() liveness.State { return b.monitor.Snapshot() }

// Status returns a snapshot of the broker.
func (b *Broker) Status() Status {
	b.mu.Lock()
	startedAt, running := b.startedAt, b.running
	b.mu.Unlock()
	return Status{
		Liveness:   b.monitor.Snapshot(),
		Counters:   b.registry.Snapshot(),
		QueueDepth: b.queue.Len(),
		InFlight:   b.table.Len(),
		StartedAt:  startedAt,
		Running:    running,
	}
}

func (b *Broker) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func (b *Broker) effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return b.requestTimeout
	}
	return min(timeout, b.maxRequestTimeout)
}

func newToken() string {
	return uuid.NewString()
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
