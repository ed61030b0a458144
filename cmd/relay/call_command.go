package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/spf13/cobra"

	"relay/internal/client"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Relay one JSON-RPC call to the responder and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.TrimSpace(args[0])
			if method == "" {
				return errors.New("method is required")
			}
			var params any
			if len(args) == 2 {
				raw := json.RawMessage(strings.TrimSpace(args[1]))
				if !json.Valid(raw) {
					return fmt.Errorf("params must be valid JSON: %s", args[1])
				}
				params = raw
			}

			var opts []client.CallOption
			if timeout > 0 {
				opts = append(opts, client.WithTimeout(timeout))
			}

			return ctx.withClient(func(cl *client.Client) error {
				var reply json.RawMessage
				if err := cl.Call(cmd.Context(), method, params, &reply, opts...); err != nil {
					return describeCallError(err)
				}
				return writeJSON(cmd, reply)
			})
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Responder timeout for this call (capped by broker.max_request_timeout)")
	return cmd
}

func describeCallError(err error) error {
	var rpcErr *json2.Error
	switch {
	case client.IsTimeout(err):
		return fmt.Errorf("call timed out waiting for the responder: %w", err)
	case client.IsThrottled(err):
		return fmt.Errorf("call throttled by the daemon; retry shortly: %w", err)
	case errors.As(err, &rpcErr):
		return fmt.Errorf("responder error %d: %s", rpcErr.Code, rpcErr.Message)
	default:
		return err
	}
}
