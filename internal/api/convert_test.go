package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/history"
	"relay/internal/liveness"
	"relay/internal/logging"
	"relay/internal/stats"
)

func TestFromBrokerStatus(t *testing.T) {
	contact := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	status := FromBrokerStatus(broker.Status{
		Running:    true,
		StartedAt:  contact.Add(-time.Minute),
		QueueDepth: 2,
		InFlight:   3,
		Counters:   stats.Counters{Total: 5, Succeeded: 1, TimedOut: 1},
		Liveness: liveness.State{
			Connected:     true,
			LastContactAt: &contact,
			LastSource:    "poll",
			Threshold:     5 * time.Second,
		},
	})
	require.True(t, status.Running)
	require.True(t, status.Connected)
	require.Equal(t, "2026-03-04T05:06:07.008Z", status.LastContactAt)
	require.Equal(t, int64(5000), status.LivenessThresholdMs)
	require.Equal(t, uint64(5), status.Counters.Total)
	require.Equal(t, uint64(1), status.Counters.TimedOut)
	require.Equal(t, 2, status.QueueDepth)
	require.Equal(t, 3, status.InFlight)

	parsed, ok := ParseTime(status.LastContactAt)
	require.True(t, ok)
	require.True(t, parsed.Equal(contact), "round trip gave %s", parsed)
}

func TestFromBrokerStatusNeverContacted(t *testing.T) {
	status := FromBrokerStatus(broker.Status{})
	require.Empty(t, status.LastContactAt)
	require.Empty(t, status.StartedAt)
	_, ok := ParseTime(status.LastContactAt)
	require.False(t, ok)
}

func TestFromLogEvents(t *testing.T) {
	empty := FromLogEvents(nil)
	require.NotNil(t, empty)
	require.Empty(t, empty)
	data, err := json.Marshal(LogStreamResponse{Events: empty})
	require.NoError(t, err)
	require.JSONEq(t, `{"events":[],"next":0}`, string(data))

	events := FromLogEvents([]logging.LogEvent{{
		Sequence:      9,
		Timestamp:     time.Unix(0, 0),
		Level:         "INFO",
		Message:       "request completed",
		Component:     "broker",
		CorrelationID: "abc",
		Method:        "ping",
		Transport:     "socket",
		Fields:        map[string]string{"outcome": "succeeded"},
	}})
	require.Len(t, events, 1)
	got := events[0]
	require.Equal(t, uint64(9), got.Sequence)
	require.Equal(t, "abc", got.CorrelationID)
	require.Equal(t, "socket", got.Transport)
	require.Equal(t, "1970-01-01T00:00:00.000Z", got.Timestamp)
	require.Equal(t, "succeeded", got.Fields["outcome"])
}

func TestFromHistoryEntries(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := FromHistoryEntries([]history.Entry{{
		ID:        4,
		Token:     "tok",
		Method:    "test_method",
		CallerID:  "1",
		Outcome:   history.OutcomeTimedOut,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}})
	require.Len(t, entries, 1)
	require.Equal(t, "timed_out", entries[0].Outcome)
	require.Equal(t, int64(1500), entries[0].DurationMs)
	require.Equal(t, "2026-01-02T03:04:05.000Z", entries[0].StartedAt)

	none := FromHistoryEntries(nil)
	require.NotNil(t, none)
	require.Empty(t, none)
}
