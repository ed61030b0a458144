// Package api defines the wire-format types served by the relay HTTP API and
// the converters that build them from broker, history and logging models.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds and
// durations are reported in milliseconds so non-Go consumers need no parsing
// beyond plain numbers.
package api
