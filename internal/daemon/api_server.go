package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"relay/internal/api"
	"relay/internal/broker"
	"relay/internal/config"
	"relay/internal/envelope"
	"relay/internal/logging"
	"relay/internal/poll"
)

const (
	defaultLogLimit     = 200
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000

	defaultEventBuffer    = 64
	defaultStatusInterval = 5 * time.Second
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	throttle *callThrottle

	// eventBuffer is the per-subscriber channel size for /api/events.
	eventBuffer    int
	statusInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:           strings.TrimSpace(cfg.Broker.HTTPBind),
		logger:         logger,
		daemon:         d,
		throttle:       newCallThrottle(cfg.Broker.MaxCallsPerSecond),
		eventBuffer:    defaultEventBuffer,
		statusInterval: defaultStatusInterval,
	}

	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /request holds the connection for up to the longest call timeout.
		WriteTimeout: d.broker.MaxRequestTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/request", s.handleRequest)
	poll.New(s.daemon.broker, s.logger).Register(mux)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/history", s.handleHistory)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if wait, ok := s.throttle.allow(r); !ok {
		logging.WarnWithContext(s.log(), "throttled caller", "request_throttled",
			logging.String(logging.FieldRemoteAddr, r.RemoteAddr),
			logging.Duration("retry_after", wait),
			logging.String(logging.FieldImpact, "call rejected before reaching the responder"),
			logging.String(logging.FieldErrorHint, "raise broker.max_calls_per_second or slow the caller"),
		)
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		s.writeJSON(w, statusForError(broker.ErrThrottled),
			envelope.ErrorResponse(nil, envelope.CodeThrottled, broker.ErrThrottled.Error()))
		return
	}

	timeout, err := parseTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest,
			envelope.ErrorResponse(nil, envelope.CodeInvalidRequest, err.Error()))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, envelope.MaxLineBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest,
			envelope.ErrorResponse(nil, envelope.CodeParseError, "unable to read request body"))
		return
	}

	resp, err := s.daemon.broker.Call(r.Context(), body, timeout)
	s.writeJSON(w, statusForError(err), resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.statusPayload())
}

func (s *apiServer) statusPayload() api.Status {
	status := s.daemon.Status()
	payload := api.FromBrokerStatus(status.Broker)
	payload.Running = status.Running
	payload.PID = status.PID
	payload.SocketConnections = status.SocketConnections
	payload.HTTPBind = status.HTTPAddr
	payload.SocketBind = status.SocketAddr
	payload.HistoryPath = status.HistoryPath
	payload.LockFilePath = status.LockFilePath
	payload.LogCapacity = status.Log.Capacity
	payload.LogBuffered = status.Log.Buffered
	payload.LogSubscribers = status.Log.Subscribers
	payload.LogDropped = status.Log.Dropped
	payload.HistoryWritten = status.HistoryWritten
	payload.HistoryDropped = status.HistoryDropped
	return payload
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.LogStream()
	archive := s.daemon.LogArchive()

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryBool(query.Get("follow"))
	tail := queryBool(query.Get("tail"))
	filter := parseLogFilter(query)

	var (
		events []logging.LogEvent
		next   = since
	)

	if archive != nil && since > 0 && since+1 < hub.FirstSequence() {
		archived, cursor, err := archive.ReadSince(since, limit)
		if err != nil {
			s.log().Warn("log archive read failed", logging.Error(err))
		} else if len(archived) > 0 {
			events, next = archived, cursor
		}
	}
	if len(events) == 0 {
		if tail && since == 0 && !follow {
			events, next = hub.Tail(limit)
		} else {
			raw, cursor, err := hub.Fetch(r.Context(), since, limit, follow)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			events, next = raw, cursor
		}
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: api.FromLogEvents(filter.apply(events)),
		Next:   next,
	})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.History()
	switch r.Method {
	case http.MethodGet:
		if store == nil {
			s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: []api.HistoryEntry{}})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		limit = min(limit, maxHistoryLimit)
		entries, err := store.Recent(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		total, err := store.Count(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{
			Entries: api.FromHistoryEntries(entries),
			Total:   total,
			Enabled: true,
		})
	case http.MethodDelete:
		if store == nil {
			s.writeError(w, http.StatusNotFound, "history disabled")
			return
		}
		removed, err := store.Clear(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.log().Info("history cleared",
			logging.String(logging.FieldEventType, "history_cleared"),
			logging.Int64("removed", removed),
		)
		s.writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// statusForError maps broker errors onto HTTP status codes for /request.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, broker.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, broker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, broker.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseTimeout accepts a Go duration ("2s") or a bare number of seconds.
// Empty means the broker default.
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("timeout must be positive")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return d, nil
}

func queryBool(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

type logFilter struct {
	component     string
	correlationID string
	method        string
	minLevel      string
}

func parseLogFilter(query url.Values) logFilter {
	return logFilter{
		component:     strings.TrimSpace(query.Get("component")),
		correlationID: strings.TrimSpace(query.Get("correlation_id")),
		method:        strings.TrimSpace(query.Get("method")),
		minLevel:      strings.TrimSpace(query.Get("level")),
	}
}

func (f logFilter) apply(events []logging.LogEvent) []logging.LogEvent {
	if f == (logFilter{}) {
		return events
	}
	out := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if f.match(evt) {
			out = append(out, evt)
		}
	}
	return out
}

func (f logFilter) match(evt logging.LogEvent) bool {
	switch {
	case f.component != "" && !strings.EqualFold(f.component, evt.Component):
		return false
	case f.correlationID != "" && f.correlationID != evt.CorrelationID:
		return false
	case f.method != "" && f.method != evt.Method:
		return false
	case f.minLevel != "" && logging.ParseLevel(evt.Level) < logging.ParseLevel(f.minLevel):
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
