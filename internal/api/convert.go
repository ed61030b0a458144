package api

import (
	"time"

	"relay/internal/broker"
	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/stats"
)

// FromCounters converts broker counters.
func FromCounters(c stats.Counters) Counters {
	return Counters{
		Total:     c.Total,
		Succeeded: c.Succeeded,
		Failed:    c.Failed,
		TimedOut:  c.TimedOut,
		Unmatched: c.Unmatched,
		Delivered: c.Delivered,
	}
}

// FromBrokerStatus fills the broker portion of a Status. Daemon fields such
// as PID and binds are left for the caller.
func FromBrokerStatus(s broker.Status) Status {
	out := Status{
		Running:             s.Running,
		StartedAt:           formatTime(s.StartedAt),
		Connected:           s.Liveness.Connected,
		LastContactSource:   s.Liveness.LastSource,
		LivenessThresholdMs: s.Liveness.Threshold.Milliseconds(),
		Counters:            FromCounters(s.Counters),
		QueueDepth:          s.QueueDepth,
		InFlight:            s.InFlight,
	}
	if s.Liveness.LastContactAt != nil {
		out.LastContactAt = formatTime(*s.Liveness.LastContactAt)
	}
	return out
}

// FromLogEvents converts stream events. An empty batch yields an empty,
// non-nil slice so /api/logs always serializes an array.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, FromLogEvent(evt))
	}
	return out
}

// FromLogEvent converts a single stream event.
func FromLogEvent(evt logging.LogEvent) LogEvent {
	return LogEvent{
		Sequence:      evt.Sequence,
		Timestamp:     formatTime(evt.Timestamp),
		Level:         evt.Level,
		Message:       evt.Message,
		Component:     evt.Component,
		CorrelationID: evt.CorrelationID,
		Method:        evt.Method,
		Transport:     evt.Transport,
		Fields:        evt.Fields,
	}
}

// FromHistoryEntries converts history rows in order.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			Token:      e.Token,
			Method:     e.Method,
			CallerID:   e.CallerID,
			Outcome:    string(e.Outcome),
			Error:      e.Error,
			Transport:  e.Transport,
			StartedAt:  formatTime(e.StartedAt),
			DurationMs: e.Duration.Milliseconds(),
		})
	}
	return out
}

// ParseTime parses a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
