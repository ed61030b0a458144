// Package config loads, normalizes, and validates relay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// RELAY_HTTP_BIND. The Config type centralizes every knob the daemon and CLI
// need: bind addresses for the two responder transports, correlation and
// liveness timings, history retention, and log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
