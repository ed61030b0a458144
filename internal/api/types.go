package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Counters mirrors the broker call counters.
type Counters struct {
	Total     uint64 `json:"total"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timedOut"`
	Unmatched uint64 `json:"unmatched"`
	Delivered uint64 `json:"delivered"`
}

// Status aggregates broker and daemon runtime information.
type Status struct {
	Running             bool     `json:"running"`
	PID                 int      `json:"pid"`
	StartedAt           string   `json:"startedAt,omitempty"`
	Connected           bool     `json:"connected"`
	LastContactAt       string   `json:"lastContactAt,omitempty"`
	LastContactSource   string   `json:"lastContactSource,omitempty"`
	LivenessThresholdMs int64    `json:"livenessThresholdMs"`
	Counters            Counters `json:"counters"`
	QueueDepth          int      `json:"queueDepth"`
	InFlight            int      `json:"inFlight"`
	SocketConnections   int      `json:"socketConnections"`
	HTTPBind            string   `json:"httpBind,omitempty"`
	SocketBind          string   `json:"socketBind,omitempty"`
	HistoryPath         string   `json:"historyPath,omitempty"`
	LockFilePath        string   `json:"lockFilePath,omitempty"`
	LogCapacity         int      `json:"logCapacity"`
	LogBuffered         int      `json:"logBuffered"`
	LogSubscribers      int      `json:"logSubscribers"`
	// LogDropped counts events a slow /api/events subscriber missed.
	LogDropped     uint64 `json:"logDropped"`
	HistoryWritten uint64 `json:"historyWritten"`
	HistoryDropped uint64 `json:"historyDropped"`
}

// LogEvent is a structured log record served by /api/logs.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Method        string            `json:"method,omitempty"`
	Transport     string            `json:"transport,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse wraps a batch of log events and the cursor for the next
// fetch.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// HistoryEntry is one finished call from the history store.
type HistoryEntry struct {
	ID         int64  `json:"id"`
	Token      string `json:"token"`
	Method     string `json:"method"`
	CallerID   string `json:"callerId,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	Transport  string `json:"transport,omitempty"`
	StartedAt  string `json:"startedAt"`
	DurationMs int64  `json:"durationMs"`
}

// HistoryResponse wraps recent history entries.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
	Enabled bool           `json:"enabled"`
}
