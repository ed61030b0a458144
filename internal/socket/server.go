package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/broker"
	"relay/internal/envelope"
	"relay/internal/logging"
)

// DefaultWriteTimeout bounds a single push to the responder.
const DefaultWriteTimeout = 10 * time.Second

// Server accepts responder connections on a TCP address.
type Server struct {
	bind         string
	responder    broker.Responder
	writeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[uint64]net.Conn
	nextID   uint64
	active   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures a server for bind. Start must be called to listen.
func NewServer(bind string, responder broker.Responder, writeTimeout time.Duration, logger *slog.Logger) (*Server, error) {
	if responder == nil {
		return nil, errors.New("socket server requires responder")
	}
	if bind == "" {
		return nil, errors.New("socket server requires bind address")
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Server{
		bind:         bind,
		responder:    responder,
		writeTimeout: writeTimeout,
		logger:       logging.NewComponentLogger(logger, "socket"),
		conns:        make(map[uint64]net.Conn),
	}, nil
}

// Start listens and accepts connections until ctx is canceled or Close is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("socket server already started")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("socket transport listening",
		logging.String(logging.FieldEventType, "socket_listening"),
		logging.String("address", listener.Addr().String()),
	)

	s.wg.Add(1)
	go s.acceptLoop(s.ctx, listener)
	return nil
}

// Addr reports the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections reports the number of open responder connections.
func (s *Server) Connections() int {
	return int(s.active.Load())
}

// Close stops accepting, drops every connection and waits for the loops to
// exit.
func (s *Server) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "accept failed", "socket_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "responder may fail to connect"),
				logging.String(logging.FieldErrorHint, "check the socket bind address and restart the daemon if needed"),
			)
			continue
		}
		id, ok := s.track(conn)
		if !ok {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return 0, false
	}
	s.nextID++
	s.conns[s.nextID] = conn
	return s.nextID, true
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) serve(parent context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := s.logger.With(
		logging.String(logging.FieldRemoteAddr, remote),
		logging.String(logging.FieldTransport, broker.TransportSocket),
	)

	s.responder.Touch(broker.TransportSocket)
	if n := s.active.Add(1); n > 1 {
		logging.WarnWithContext(logger, "additional responder connected", "socket_multiple_responders",
			logging.Int64("connections", n),
			logging.String(logging.FieldImpact, "requests are split between responders"),
			logging.String(logging.FieldErrorHint, "run a single responder per relay"),
		)
	} else {
		logger.Info("responder connected", logging.String(logging.FieldEventType, "socket_connected"))
	}
	defer s.active.Add(-1)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		defer cancel()
		s.pushLoop(ctx, conn, logger)
	}()

	s.readLoop(conn, logger)
	cancel()
	_ = conn.Close()
	loops.Wait()

	logger.Info("responder disconnected", logging.String(logging.FieldEventType, "socket_disconnected"))
}

func (s *Server) pushLoop(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	writer := envelope.NewLineWriter(conn)
	for {
		req, err := s.responder.Next(ctx)
		if err != nil {
			// Context cancellation or broker shutdown; the read loop is told
			// by closing the connection.
			_ = conn.Close()
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := writer.Write(req); err != nil {
			logging.WarnWithContext(logger, "push to responder failed", "socket_write_failed",
				logging.Error(err),
				logging.String(logging.FieldCorrelationID, req.Token),
				logging.String(logging.FieldMethod, req.Method),
				logging.String(logging.FieldImpact, "the caller will time out"),
				logging.String(logging.FieldErrorHint, "responder should reconnect"),
			)
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(conn net.Conn, logger *slog.Logger) {
	scanner := envelope.NewLineScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, err := envelope.ParseResponse(line)
		if err != nil {
			s.responder.Touch(broker.TransportSocket)
			logging.WarnWithContext(logger, "skipping unparseable result line", "result_malformed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the waiting caller will time out"),
				logging.String(logging.FieldErrorHint, "send one JSON object per line with _broker_uuid"),
			)
			continue
		}
		s.responder.Submit(resp, broker.TransportSocket)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("socket read ended", logging.Error(err))
	}
}
