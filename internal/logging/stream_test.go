package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamHandlerWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).With(slog.String(FieldCorrelationID, "tok-1"))
	logger.Info("request enqueued", slog.String(FieldMethod, "echo"), slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	require.Len(t, events, 1)
	evt := events[0]
	require.Equal(t, "tok-1", evt.CorrelationID)
	require.Equal(t, "echo", evt.Method)
	require.Equal(t, "value", evt.Fields["extra"])
	require.Equal(t, "INFO", evt.Level)
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).With(slog.String(FieldTransport, "poll"))
	logger.Info("message", slog.String(FieldTransport, "socket"))

	events, _ := hub.Tail(10)
	require.Len(t, events, 1)
	require.Equal(t, "socket", events[0].Transport, "call-site transport wins")
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	require.Same(t, base, newStreamHandler(base, nil))
}

func TestStreamHandlerEnabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, hub)

	require.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		hub.Publish(LogEvent{Message: msg})
	}

	events, next := hub.Tail(0)
	require.Len(t, events, 3)
	require.Equal(t, "c", events[0].Message)
	require.Equal(t, "e", events[2].Message)
	require.Equal(t, uint64(5), next)
	require.Equal(t, uint64(3), hub.FirstSequence())
	require.Equal(t, 3, hub.Len())
	require.Equal(t, 3, hub.Capacity())
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(10)
	for range 5 {
		hub.Publish(LogEvent{Message: "m"})
	}

	events, next, err := hub.Fetch(context.Background(), 3, 0, false)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, uint64(4), events[0].Sequence)
	require.Equal(t, uint64(5), next)

	events, _, _ = hub.Fetch(context.Background(), 5, 0, false)
	require.Empty(t, events, "nothing past the head")
}

func TestStreamHubFetchLimitAdvancesCursorByPage(t *testing.T) {
	hub := NewStreamHub(10)
	for range 6 {
		hub.Publish(LogEvent{Message: "m"})
	}

	first, next, _ := hub.Fetch(context.Background(), 0, 4, false)
	require.Len(t, first, 4)
	require.Equal(t, uint64(4), next)

	second, next, _ := hub.Fetch(context.Background(), next, 4, false)
	require.Len(t, second, 2)
	require.Equal(t, uint64(5), second[0].Sequence)
	require.Equal(t, uint64(6), next)
}

func TestStreamHubFetchWaitWakesOnPublish(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 0, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})

	select {
	case events := <-done:
		require.Len(t, events, 1)
		require.Equal(t, "wake", events[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchWaitHonoursContext(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 0, true)
	require.Error(t, err)
}

func TestStreamHubSubscribeNeverBlocks(t *testing.T) {
	hub := NewStreamHub(10)
	ch, cancel := hub.Subscribe(1)
	defer cancel()
	require.Equal(t, 1, hub.Subscribers())

	finished := make(chan struct{})
	go func() {
		for range 5 {
			hub.Publish(LogEvent{Message: "x"})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	require.Equal(t, uint64(4), hub.Dropped())
	evt := <-ch
	require.Equal(t, uint64(1), evt.Sequence, "first event delivered")
}

func TestStreamHubSubscribeCancelClosesChannel(t *testing.T) {
	hub := NewStreamHub(10)
	ch, cancel := hub.Subscribe(4)
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok, "channel closed after cancel")
	require.Zero(t, hub.Subscribers())
	hub.Publish(LogEvent{Message: "after cancel"})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
