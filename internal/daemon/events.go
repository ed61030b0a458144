package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"relay/internal/api"
	"relay/internal/logging"
)

// handleEvents streams log events and periodic status snapshots as
// server-sent events. Each connection is a hub subscriber: when it falls
// behind, events are dropped for it and counted in status, and the broker
// never waits on it.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "log stream unavailable")
		return
	}
	filter := parseLogFilter(r.URL.Query())

	events, unsubscribe := hub.Subscribe(s.eventBuffer)
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The server write timeout is sized for /request, not for a stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := s.log().With(logging.String(logging.FieldRemoteAddr, r.RemoteAddr))
	logger.Debug("event subscriber connected", logging.String(logging.FieldEventType, "events_subscribed"))
	defer logger.Debug("event subscriber disconnected", logging.String(logging.FieldEventType, "events_unsubscribed"))

	send := func(event string, id uint64, payload any) bool {
		if err := writeSSE(w, event, id, payload); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send("status", 0, s.statusPayload()) {
		return
	}
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.daemon.broker.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !filter.match(evt) {
				continue
			}
			if !send("log", evt.Sequence, api.FromLogEvent(evt)) {
				return
			}
		case <-ticker.C:
			if !send("status", 0, s.statusPayload()) {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event string, id uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
