package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/api"
	"relay/internal/logs"
)

const followBatch = 200

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		lines  int
		query  logs.StreamQuery
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			query.Limit = lines
			err = streamLogsFromAPI(cmd, ctx.httpBind(), query, follow)
			if err == nil || !errors.Is(err, logs.ErrAPIUnavailable) {
				return err
			}
			return tailLogFile(cmd, filepath.Join(cfg.Paths.LogDir, "relay.log"), lines, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all buffered)")
	cmd.Flags().StringVar(&query.Component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&query.CorrelationID, "correlation-id", "", "Only show events for this correlation token")
	cmd.Flags().StringVar(&query.Method, "method", "", "Only show events for this RPC method")
	cmd.Flags().StringVar(&query.Level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

func streamLogsFromAPI(cmd *cobra.Command, bind string, query logs.StreamQuery, follow bool) error {
	client, err := logs.NewStreamClient(bind)
	if err != nil {
		return err
	}
	if client == nil {
		return logs.ErrAPIUnavailable
	}

	ctx := cmd.Context()
	query.Tail = true
	if query.Limit <= 0 {
		query.Limit = followBatch
	}

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if logs.IsAPIUnavailable(err) {
				return logs.ErrAPIUnavailable
			}
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(cmd.OutOrStdout(), formatAPILogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		if resp.Next > query.Since {
			query.Since = resp.Next
		}
		query.Limit = followBatch
		query.Tail = false
		query.Follow = true
	}
}

// tailLogFile is the fallback when the daemon is not serving /api/logs.
func tailLogFile(cmd *cobra.Command, path string, lines int, follow bool) error {
	ctx := cmd.Context()
	opts := logs.TailOptions{Offset: -1, Limit: lines, Follow: follow, Wait: time.Second}
	if lines <= 0 {
		opts.Offset = 0
	}

	printed := false
	for {
		result, err := logs.Tail(ctx, path, opts)
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		for _, line := range result.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		opts.Offset = result.Offset
	}
}

func formatAPILogEvent(evt api.LogEvent) string {
	ts := evt.Timestamp
	if parsed, ok := api.ParseTime(evt.Timestamp); ok {
		ts = parsed.Local().Format("2006-01-02 15:04:05")
	}
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	if subject := composeSubject(evt.Method, evt.CorrelationID); subject != "" {
		parts = append(parts, subject)
	}
	line := strings.Join(parts, " ")
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " – " + message
	}
	if evt.Transport != "" {
		line += " (" + evt.Transport + ")"
	}
	return line
}

// composeSubject renders "method #token8" with whichever half is present.
func composeSubject(method, token string) string {
	method = strings.TrimSpace(method)
	token = strings.TrimSpace(token)
	if len(token) > 8 {
		token = token[:8]
	}
	switch {
	case method != "" && token != "":
		return fmt.Sprintf("%s #%s", method, token)
	case token != "":
		return "#" + token
	default:
		return method
	}
}
