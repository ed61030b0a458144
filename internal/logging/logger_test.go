package logging_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/logging"
)

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logger.Info("message without source")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NotContains(t, string(content), ".go:", "info logs carry no source")
}

func TestConsoleLoggerRendersSubjectAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logging.NewComponentLogger(logger, "broker").Info("request completed",
		logging.String(logging.FieldCorrelationID, "0123456789abcdef"),
		logging.String(logging.FieldMethod, "test_method"),
		logging.String(logging.FieldTransport, "socket"),
		logging.Duration("duration", 1500*time.Millisecond),
	)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	text := string(content)
	for _, want := range []string{"[broker]", "test_method #01234567", "request completed", "- Transport: socket", "- Duration: 1.5s"} {
		require.Contains(t, text, want)
	}
	require.NotContains(t, text, "Correlation", "correlation id is hidden at info")
}

func TestJSONLoggerUsesTSKey(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	require.NoError(t, err)
	logger.Warn("slow responder", slog.Any("cause", errors.New("socket closed")))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(content, &record))
	require.Equal(t, "warn", record["level"])
	require.Equal(t, "socket closed", record["cause"])

	ts, _ := record["ts"].(string)
	_, err = time.Parse("2006-01-02T15:04:05.000Z07:00", ts)
	require.NoError(t, err, "millisecond ts %q", ts)
	require.True(t, len(ts) > 0 && ts[len(ts)-1] == 'Z', "UTC ts %q", ts)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	require.Error(t, err)
}

func TestNewPublishesToStream(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}, Stream: hub})
	require.NoError(t, err)
	logger.Info("streamed")
	logger.Debug("filtered")

	events, _ := hub.Tail(0)
	require.Len(t, events, 1)
	require.Equal(t, "streamed", events[0].Message)
}

func TestEventArchiveReadSince(t *testing.T) {
	archive, err := logging.NewEventArchive(filepath.Join(t.TempDir(), "relay.events"))
	require.NoError(t, err)
	defer archive.Close()

	hub := logging.NewStreamHub(2)
	hub.AddSink(archive)
	for range 5 {
		hub.Publish(logging.LogEvent{Message: "evt"})
	}

	events, highest, err := archive.ReadSince(1, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, uint64(5), highest)
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "relay-old.events")
	keepPath := filepath.Join(dir, "relay-new.events")
	for _, path := range []string{oldPath, keepPath} {
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	}
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "relay-*.events"})
	require.Equal(t, 1, removed)
	require.NoFileExists(t, oldPath)
	require.FileExists(t, keepPath)
}

func TestCorrelationContextFields(t *testing.T) {
	ctx := logging.WithCorrelationID(t.Context(), "tok")
	id, ok := logging.CorrelationIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "tok", id)
	require.Empty(t, logging.ContextFields(t.Context()))
}
