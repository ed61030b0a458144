package preflight

import (
	"context"
	"strings"

	"relay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the startup checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBindsDistinct(cfg.Broker.HTTPBind, cfg.Broker.SocketBind),
		CheckBindAvailable(ctx, "HTTP bind", cfg.Broker.HTTPBind),
	}
	// Socket transport is optional.
	if strings.TrimSpace(cfg.Broker.SocketBind) != "" {
		results = append(results, CheckBindAvailable(ctx, "Socket bind", cfg.Broker.SocketBind))
	}
	return results
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
