package history

import "time"

// Outcome is the final state of a relayed call.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed covers responder error envelopes and broker-side failures.
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeMalformed Outcome = "malformed"
)

// Entry is one finished call.
type Entry struct {
	ID        int64
	Token     string
	Method    string
	CallerID  string
	Outcome   Outcome
	Error     string
	Transport string
	StartedAt time.Time
	Duration  time.Duration
}
