package history

import (
	"database/sql"
	"strings"
	"time"
)

// timeLayout is fixed-width so started_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const entryColumns = "id, token, method, caller_id, outcome, error_message, transport, started_at, duration_ms"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry      Entry
		callerID   sql.NullString
		outcome    string
		errMessage sql.NullString
		transport  sql.NullString
		startedRaw string
		durationMS int64
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Token,
		&entry.Method,
		&callerID,
		&outcome,
		&errMessage,
		&transport,
		&startedRaw,
		&durationMS,
	); err != nil {
		return Entry{}, err
	}
	entry.CallerID = callerID.String
	entry.Outcome = Outcome(outcome)
	entry.Error = errMessage.String
	entry.Transport = transport.String
	entry.StartedAt = parseTimeString(startedRaw)
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimeString(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(timeLayout, raw); err == nil {
		return ts
	}
	return time.Time{}
}
