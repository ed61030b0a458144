package socket_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/envelope"
	"relay/internal/socket"
)

func startServer(t *testing.T) (*broker.Broker, *socket.Server) {
	t.Helper()
	return startServerWith(t, broker.Options{RequestTimeout: 2 * time.Second})
}

func startServerWith(t *testing.T, opts broker.Options) (*broker.Broker, *socket.Server) {
	t.Helper()
	b := broker.New(opts)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	srv, err := socket.NewServer("127.0.0.1:0", b, time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Close)
	return b, srv
}

func dial(t *testing.T, srv *socket.Server) (net.Conn, *bufio.Scanner) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, envelope.NewLineScanner(conn)
}

func TestSocketRoundTrip(t *testing.T) {
	b, srv := startServer(t)
	conn, scanner := dial(t, srv)

	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, b.Liveness().Connected)
	require.Equal(t, broker.TransportSocket, b.Liveness().LastSource)

	done := make(chan envelope.Response, 1)
	go func() {
		resp, _ := b.Call(context.Background(), []byte(`{"jsonrpc":"2.0","method":"socket_test","params":[1,2],"id":"abc"}`), 0)
		done <- resp
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.True(t, scanner.Scan(), "expected a pushed request: %v", scanner.Err())
	var req envelope.Request
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &req))
	require.Equal(t, "socket_test", req.Method)
	require.Equal(t, `"abc"`, string(req.ID))
	require.NotEmpty(t, req.Token)

	reply := envelope.Response{JSONRPC: envelope.Version, Result: json.RawMessage(`"socket_success"`), ID: req.ID, Token: req.Token}
	require.NoError(t, envelope.NewLineWriter(conn).Write(reply))

	select {
	case resp := <-done:
		require.Equal(t, `"socket_success"`, string(resp.Result))
		require.Equal(t, `"abc"`, string(resp.ID))
		require.Empty(t, resp.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("caller was not resolved")
	}
	require.Equal(t, uint64(1), b.Stats().Succeeded)
}

func TestSocketSkipsGarbageLines(t *testing.T) {
	b, srv := startServer(t)
	conn, _ := dial(t, srv)
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)

	_, err := conn.Write([]byte("not json\n{\"_broker_uuid\":\"unknown\",\"result\":1}\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Stats().Unmatched == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, srv.Connections(), "connection survives a bad line")
}

func TestSocketDisconnectFallsBackToPoll(t *testing.T) {
	b, srv := startServer(t)
	conn, _ := dial(t, srv)
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Connections() == 0 }, time.Second, 5*time.Millisecond)

	done := make(chan envelope.Response, 1)
	go func() {
		resp, _ := b.Call(context.Background(), []byte(`{"jsonrpc":"2.0","method":"after_drop","id":7}`), 0)
		done <- resp
	}()

	var req envelope.Request
	require.Eventually(t, func() bool {
		var ok bool
		req, ok = b.TryNext()
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "after_drop", req.Method)

	require.True(t, b.Submit(envelope.Response{JSONRPC: envelope.Version, Result: json.RawMessage(`true`), Token: req.Token}, broker.TransportPoll))
	select {
	case resp := <-done:
		require.Equal(t, `true`, string(resp.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("caller was not resolved")
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSocketPushDoesNotCountAsContact(t *testing.T) {
	clock := &stepClock{now: time.Now()}
	connectedAt := clock.Now()
	b, srv := startServerWith(t, broker.Options{
		RequestTimeout:    2 * time.Second,
		LivenessThreshold: 300 * time.Millisecond,
		Now:               clock.Now,
	})
	dial(t, srv)
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(250 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_, _ = b.Call(ctx, []byte(`{"jsonrpc":"2.0","method":"silent","id":1}`), 0)
	}()

	// The responder never reads or replies; the request still leaves the
	// queue once written to the connection.
	require.Eventually(t, func() bool { return b.Stats().Delivered == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	clock.Advance(200 * time.Millisecond)
	state := b.Liveness()
	require.False(t, state.Connected, "a silent responder must go stale")
	require.NotNil(t, state.LastContactAt)
	require.True(t, state.LastContactAt.Equal(connectedAt), "last contact %s, connected at %s", state.LastContactAt, connectedAt)
}

func TestSocketCloseDropsConnections(t *testing.T) {
	_, srv := startServer(t)
	conn, scanner := dial(t, srv)
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)

	srv.Close()
	require.Equal(t, 0, srv.Connections())
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.False(t, scanner.Scan())
}

func TestNewServerValidatesArguments(t *testing.T) {
	_, err := socket.NewServer("127.0.0.1:0", nil, 0, nil)
	require.Error(t, err)

	b := broker.New(broker.Options{})
	_, err = socket.NewServer("", b, 0, nil)
	require.Error(t, err)
}
