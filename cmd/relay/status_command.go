package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/client"
	"relay/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, responder and call counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := !asJSON && shouldColorize(stdout)

			check := preflight.CheckDaemon(cmd.Context(), ctx.httpBind())
			if !check.Passed {
				if asJSON {
					return writeJSON(cmd, map[string]any{"running": false, "detail": check.Detail})
				}
				for _, line := range renderSectionHeader("Relay", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, "Not running ("+check.Detail+")", colorize))
				return nil
			}

			return ctx.withClient(func(cl *client.Client) error {
				status, err := cl.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("fetch status: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				for _, line := range statusLines(status, time.Now(), colorize) {
					fmt.Fprintln(stdout, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}
