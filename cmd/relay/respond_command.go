package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"relay/internal/client"
	"relay/internal/envelope"
	"relay/internal/logging"
)

// echoResult is what the echo responder returns for every request.
type echoResult struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func newRespondCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Act as an echo responder over the poll transport",
		Long: "Polls the daemon for pending requests and answers each one with its own method " +
			"and params. Useful for smoke testing callers without a real responder.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}
			return ctx.withClient(func(cl *client.Client) error {
				return echoLoop(cmd.Context(), cl, interval, once, logging.NewComponentLogger(logger, "echo-responder"))
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Delay between idle polls")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after answering one request")
	return cmd
}

func echoLoop(ctx context.Context, cl *client.Client, interval time.Duration, once bool, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		req, ok, err := cl.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
			continue
		}

		matched, err := cl.Respond(ctx, echoResponse(req))
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		logger.Info("answered request",
			logging.String(logging.FieldMethod, req.Method),
			logging.String(logging.FieldCorrelationID, req.Token),
			logging.Bool("matched", matched),
		)
		if once {
			return nil
		}
	}
}

func echoResponse(req envelope.Request) envelope.Response {
	result, err := json.Marshal(echoResult{Method: req.Method, Params: req.Params})
	if err != nil {
		resp := envelope.ErrorResponse(req.ID, envelope.CodeInvalidRequest, err.Error())
		resp.Token = req.Token
		return resp
	}
	return envelope.Response{
		JSONRPC: envelope.Version,
		Result:  result,
		ID:      req.ID,
		Token:   req.Token,
	}
}
