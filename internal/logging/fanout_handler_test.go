package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil, nil)
	require.IsType(t, NoopHandler{}, h)
}

func TestNewFanoutHandlerFiltersNil(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	h := newFanoutHandler(nil, inner, nil)
	require.Same(t, inner, h, "single non-nil handler returned unwrapped")
}

func TestFanoutHandlerEnabled(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewJSONHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelWarn})
	h2 := slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(h1, h2)
	require.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	h = newFanoutHandler(h1, slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError}))
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo), "no handler accepts info")
}

func TestFanoutHandlerHandleRespectsLevel(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h)

	logger.Info("only info")
	logger.Warn("both")

	require.Contains(t, infoBuf.String(), "only info")
	require.Contains(t, infoBuf.String(), "both")
	require.NotContains(t, warnBuf.String(), "only info")
	require.Contains(t, warnBuf.String(), "both")
}

func TestFanoutHandlerWithAttrs(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	)).With(slog.String(FieldComponent, "broker"))

	logger.Info("hello")
	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		require.Contains(t, buf.String(), `"component":"broker"`, "handler %d", i)
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, extraBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))

	logger := TeeLogger(base, slog.NewJSONHandler(&extraBuf, nil))
	logger.Info("tee")

	require.Contains(t, baseBuf.String(), "tee")
	require.Contains(t, extraBuf.String(), "tee")
}

func TestTeeLoggerNilBase(t *testing.T) {
	var buf bytes.Buffer
	logger := TeeLogger(nil, slog.NewJSONHandler(&buf, nil))
	logger.Info("no base")
	require.Contains(t, buf.String(), "no base")
}
