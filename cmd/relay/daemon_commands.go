package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/client"
	"relay/internal/daemonctl"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the relay daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			return ctx.withClient(func(cl *client.Client) error {
				result, err := daemonctl.EnsureStarted(cmd.Context(), cl, exe, ctx.launchOptions(logLevel), startWaitTimeout)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch result.State {
				case daemonctl.StartStateAlreadyRunning:
					fmt.Fprintf(out, "Relay daemon already running (pid %d)\n", result.PID)
				default:
					fmt.Fprintf(out, "Relay daemon started (pid %d) on %s\n", result.PID, result.Status.HTTPBind)
				}
				return nil
			})
		},
	}
	start.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the launched daemon")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				result, err := daemonctl.StopAndTerminate(cmd.Context(), cl, cfg, stopGracePeriod)
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "Relay daemon is not running")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), stopMessage(result))
				return nil
			})
		},
	}

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Restart the background relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			return ctx.withClient(func(cl *client.Client) error {
				result, err := daemonctl.Restart(cmd.Context(), cl, cfg, exe, ctx.launchOptions(""), stopGracePeriod, startWaitTimeout)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if result.WasRunning {
					fmt.Fprintln(out, stopMessage(result.Stop))
				}
				fmt.Fprintf(out, "Relay daemon started (pid %d)\n", result.Start.PID)
				return nil
			})
		},
	}

	return []*cobra.Command{start, stop, restart}
}

func stopMessage(result daemonctl.StopResult) string {
	if result.ForcedKill {
		return fmt.Sprintf("Relay daemon did not exit in time; killed pid %d", result.PID)
	}
	return fmt.Sprintf("Relay daemon stopped (pid %d)", result.PID)
}
