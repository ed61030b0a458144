package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"relay/internal/api"
	"relay/internal/client"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.History(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("fetch history: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Enabled {
					fmt.Fprintln(out, "History is disabled (history.enabled = false)")
					return nil
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No calls recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistoryTable(resp.Entries, time.Now()))
				fmt.Fprintf(out, "Showing %d of %s calls\n", len(resp.Entries), humanize.Comma(int64(resp.Total)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit entries as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				removed, err := cl.ClearHistory(cmd.Context())
				if err != nil {
					return fmt.Errorf("clear history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries\n", removed)
				return nil
			})
		},
	})
	return cmd
}

func renderHistoryTable(entries []api.HistoryEntry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		started := e.StartedAt
		if ts, ok := api.ParseTime(e.StartedAt); ok {
			started = humanize.RelTime(ts, now, "ago", "from now")
		}
		outcome := e.Outcome
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Method,
			shortToken(e.Token),
			outcome,
			e.Transport,
			strconv.FormatInt(e.DurationMs, 10) + "ms",
			started,
		})
	}
	return renderTable(
		[]string{"ID", "Method", "Token", "Outcome", "Transport", "Duration", "Started"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
