package broker

import "errors"

var (
	// ErrMalformed reports a caller body that is not a valid request envelope.
	ErrMalformed = errors.New("malformed request")
	// ErrTimeout reports that the responder did not answer before the deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrStopped reports that the broker shut down while the call was in flight.
	ErrStopped = errors.New("broker stopped")
	// ErrThrottled reports a caller over its call budget. Returned by the HTTP layer.
	ErrThrottled = errors.New("too many requests")
)
