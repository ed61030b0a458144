// Package logging assembles structured slog loggers and formatting helpers used
// across the relay daemon and CLI.
//
// It owns the configurable console/JSON handlers, the in-memory StreamHub that
// backs /api/logs, the on-disk EventArchive, and log retention. Context helpers
// tag lines with the correlation token of the call being relayed so a single
// request can be followed across the facade and both responder transports.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys and routing.
package logging
