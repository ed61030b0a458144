package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"relay/internal/broker"
	"relay/internal/config"
	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/socket"
)

// Daemon owns the broker transports and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	broker   *broker.Broker
	history  *history.Store
	recorder *history.Recorder
	archive  *logging.EventArchive

	lockPath string
	lock     *flock.Flock

	mu     sync.Mutex
	socket *socket.Server
	api    *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running           bool
	PID               int
	Broker            broker.Status
	SocketConnections int
	HTTPAddr          string
	SocketAddr        string
	HistoryPath       string
	LockFilePath      string
	Log               LogStats
	HistoryWritten    uint64
	HistoryDropped    uint64
}

// LogStats describes the in-memory log ring and its live subscribers.
type LogStats struct {
	Capacity    int
	Buffered    int
	Subscribers int
	Dropped     uint64
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLogArchive lets /api/logs serve events already evicted from the ring.
func WithLogArchive(archive *logging.EventArchive) Option {
	return func(d *Daemon) { d.archive = archive }
}

// WithHistoryRecorder reports the recorder's write and drop counts in status.
func WithHistoryRecorder(recorder *history.Recorder) Option {
	return func(d *Daemon) { d.recorder = recorder }
}

// New constructs a daemon. store may be nil when history is disabled.
func New(cfg *config.Config, b *broker.Broker, store *history.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || b == nil {
		return nil, errors.New("daemon requires config and broker")
	}
	if logger == nil {
		logger = b.Logger()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		base:     logger,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		broker:   b,
		history:  store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, then starts the broker, the socket
// transport and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another relay daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		d.shutdownLocked()
		_ = d.lock.Unlock()
		return err
	}

	if err := d.broker.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start broker: %w", err))
	}

	if bind := d.cfg.Broker.SocketBind; bind != "" {
		srv, err := socket.NewServer(bind, d.broker, d.cfg.SocketWriteTimeout(), d.base)
		if err != nil {
			return fail(fmt.Errorf("create socket transport: %w", err))
		}
		if err := srv.Start(runCtx); err != nil {
			return fail(fmt.Errorf("start socket transport: %w", err))
		}
		d.socket = srv
	}

	d.api = newAPIServer(d.cfg, d, d.base)
	if err := d.api.start(runCtx); err != nil {
		return fail(fmt.Errorf("start api server: %w", err))
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("relay daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("http_bind", d.api.addr()),
		logging.String("socket_bind", d.socketAddr()),
	)
	return nil
}

// Stop shuts down transports, fails in-flight calls and releases the lock.
// The broker cannot be restarted, so neither can the daemon.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.shutdownLocked()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no relay daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("relay daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) shutdownLocked() {
	// The broker goes first so blocked callers return before their HTTP
	// connections are torn down.
	d.broker.Stop()
	if d.api != nil {
		d.api.stop()
	}
	if d.socket != nil {
		d.socket.Close()
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Broker exposes the owned broker.
func (d *Daemon) Broker() *broker.Broker { return d.broker }

// LogStream returns the in-memory log ring.
func (d *Daemon) LogStream() *logging.StreamHub { return d.broker.Hub() }

// LogArchive returns the on-disk event journal, if any.
func (d *Daemon) LogArchive() *logging.EventArchive { return d.archive }

// History returns the history store, or nil when disabled.
func (d *Daemon) History() *history.Store { return d.history }

// HTTPAddr reports the bound HTTP address while running.
func (d *Daemon) HTTPAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// SocketAddr reports the bound socket transport address while running.
func (d *Daemon) SocketAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socketAddr()
}

func (d *Daemon) socketAddr() string {
	if d.socket == nil || d.socket.Addr() == nil {
		return ""
	}
	return d.socket.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Broker:       d.broker.Status(),
		HTTPAddr:     d.HTTPAddr(),
		SocketAddr:   d.SocketAddr(),
		LockFilePath: d.lockPath,
	}
	d.mu.Lock()
	if d.socket != nil {
		status.SocketConnections = d.socket.Connections()
	}
	d.mu.Unlock()
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	if d.recorder != nil {
		status.HistoryWritten = d.recorder.Written()
		status.HistoryDropped = d.recorder.Dropped()
	}
	if hub := d.broker.Hub(); hub != nil {
		status.Log = LogStats{
			Capacity:    hub.Capacity(),
			Buffered:    hub.Len(),
			Subscribers: hub.Subscribers(),
			Dropped:     hub.Dropped(),
		}
	}
	return status
}
