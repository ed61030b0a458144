package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/envelope"
	"relay/internal/logging"
	"relay/internal/testsupport"
)

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		nil:                                      http.StatusOK,
		fmt.Errorf("x: %w", broker.ErrMalformed): http.StatusBadRequest,
		broker.ErrThrottled:                      http.StatusTooManyRequests,
		broker.ErrStopped:                        http.StatusServiceUnavailable,
		fmt.Errorf("call: %w", broker.ErrTimeout): http.StatusGatewayTimeout,
		context.Canceled:   http.StatusServiceUnavailable,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusForError(err), "statusForError(%v)", err)
	}
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"2s", 2 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"250ms", 250 * time.Millisecond, false},
		{"0", 0, true},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := parseTimeout(tc.in)
		if tc.wantErr {
			require.Error(t, err, "parseTimeout(%q)", tc.in)
			continue
		}
		require.NoError(t, err, "parseTimeout(%q)", tc.in)
		require.Equal(t, tc.want, got, "parseTimeout(%q)", tc.in)
	}
}

func TestLogFilter(t *testing.T) {
	events := []logging.LogEvent{
		{Sequence: 1, Level: "DEBUG", Component: "broker", Method: "a", CorrelationID: "t1"},
		{Sequence: 2, Level: "INFO", Component: "Broker", Method: "b", CorrelationID: "t2"},
		{Sequence: 3, Level: "WARN", Component: "socket", Method: "a", CorrelationID: "t1"},
	}

	require.Len(t, (logFilter{}).apply(events), 3, "empty filter passes everything")
	require.Len(t, (logFilter{component: "broker"}).apply(events), 2, "component filter is case-insensitive")
	require.Len(t, (logFilter{correlationID: "t1", method: "a"}).apply(events), 2)

	got := (logFilter{minLevel: "info"}).apply(events)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[0].Sequence)

	require.True(t, (logFilter{method: "a"}).match(events[2]))
	require.False(t, (logFilter{method: "a", minLevel: "error"}).match(events[2]))
}

func TestRetryAfterSeconds(t *testing.T) {
	require.Equal(t, "1", retryAfterSeconds(0), "minimum of one second")
	require.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond), "rounds up")
}

func TestWriteSSE(t *testing.T) {
	var buf stringWriter
	require.NoError(t, writeSSE(&buf, "log", 7, map[string]string{"msg": "hi"}))
	require.Equal(t, "id: 7\nevent: log\ndata: {\"msg\":\"hi\"}\n\n", buf.String())

	buf = stringWriter{}
	require.NoError(t, writeSSE(&buf, "status", 0, map[string]bool{"running": true}))
	require.Equal(t, "event: status\ndata: {\"running\":true}\n\n", buf.String())
}

type stringWriter struct{ data []byte }

func (w *stringWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *stringWriter) String() string { return string(w.data) }

// stalledWriter blocks every write until released, like a subscriber whose
// TCP window has closed.
type stalledWriter struct {
	header  http.Header
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStalledWriter() *stalledWriter {
	return &stalledWriter{
		header:  make(http.Header),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *stalledWriter) Header() http.Header { return w.header }

func (w *stalledWriter) WriteHeader(int) {}

func (w *stalledWriter) Write([]byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	<-w.release
	return 0, io.ErrClosedPipe
}

func (w *stalledWriter) Flush() {}

func TestSlowEventSubscriberDoesNotBlockCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutSocket())
	hub := logging.NewStreamHub(64)
	logger := slog.New(logging.NewStreamHandler(hub, slog.LevelDebug))
	b := broker.New(broker.Options{RequestTimeout: 2 * time.Second, Logger: logger, LogHub: hub})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	d, err := New(cfg, b, nil, logger)
	require.NoError(t, err)
	srv := newAPIServer(cfg, d, logger)
	srv.eventBuffer = 1
	srv.statusInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newStalledWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		srv.handleEvents(w, req)
	}()

	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("events handler never wrote")
	}
	require.Equal(t, 1, hub.Subscribers())

	for i := range 5 {
		results := make(chan error, 1)
		go func() {
			_, err := b.Call(context.Background(), []byte(fmt.Sprintf(`{"jsonrpc":"2.0","method":"busy","id":%d}`, i)), 0)
			results <- err
		}()
		var pending envelope.Request
		require.Eventually(t, func() bool {
			var ok bool
			pending, ok = b.TryNext()
			return ok
		}, time.Second, 5*time.Millisecond)
		require.True(t, b.Submit(envelope.Response{Result: json.RawMessage(`true`), Token: pending.Token}, broker.TransportPoll))

		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("call blocked behind a stalled subscriber")
		}
	}
	require.Equal(t, uint64(5), b.Stats().Succeeded)
	require.NotZero(t, hub.Dropped())
	require.Equal(t, hub.Dropped(), d.Status().Log.Dropped)

	cancel()
	close(w.release)
	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("events handler did not exit")
	}
	require.Zero(t, hub.Subscribers())
}
