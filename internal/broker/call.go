package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relay/internal/correlation"
	"relay/internal/envelope"
	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/pending"
)

// Call parses body as a request envelope and relays it. The returned
// response is always suitable for the caller: on error it is a JSON-RPC
// error envelope carrying the caller's id.
func (b *Broker) Call(ctx context.Context, body []byte, timeout time.Duration) (envelope.Response, error) {
	started := b.now()
	b.registry.IncTotal()

	req, rpcErr, err := envelope.ParseRequest(body)
	if err != nil {
		b.registry.IncFailed()
		logging.WarnWithContext(b.logger, "rejected malformed request", "request_malformed",
			logging.Error(err),
			logging.Int(logging.FieldErrorCode, rpcErr.Code),
			logging.Int("body_bytes", len(body)),
			logging.String(logging.FieldImpact, "caller received a JSON-RPC error"),
			logging.String(logging.FieldErrorHint, "send a JSON object with a non-empty method"),
		)
		b.recordHistory(history.Entry{
			Method:    req.Method,
			CallerID:  string(req.ID),
			Outcome:   history.OutcomeMalformed,
			Error:     describeError(err),
			StartedAt: started,
			Duration:  b.now().Sub(started),
		})
		resp := envelope.Response{JSONRPC: envelope.Version, Error: rpcErr, ID: req.ID}
		return resp, wrapf(ErrMalformed, "%s", describeError(err))
	}
	return b.relay(ctx, req, timeout, started)
}

func (b *Broker) relay(ctx context.Context, req envelope.Request, timeout time.Duration, started time.Time) (envelope.Response, error) {
	timeout = b.effectiveTimeout(timeout)
	entry := history.Entry{Method: req.Method, CallerID: string(req.ID), StartedAt: started}

	if b.isStopped() {
		return b.failStopped(req, entry)
	}

	token, waiter, err := b.register(started.Add(timeout))
	if err != nil {
		b.registry.IncFailed()
		entry.Outcome = history.OutcomeFailed
		entry.Error = describeError(err)
		b.recordHistory(entry)
		return envelope.ErrorResponse(req.ID, envelope.CodeUnavailable, "unable to register request"), err
	}
	entry.Token = token
	ctx = logging.WithCorrelationID(ctx, token)
	logger := logging.WithContext(ctx, b.logger).With(logging.String(logging.FieldMethod, req.Method))

	// Register precedes enqueue so a fast responder can never reply to a
	// token the table does not know yet.
	if !b.queue.Enqueue(pending.Item{
		Token:      token,
		Method:     req.Method,
		Params:     req.Params,
		CallerID:   req.ID,
		EnqueuedAt: started,
	}) {
		b.table.Resolve(token, correlation.Result{})
		return b.failStopped(req, entry)
	}
	logger.Debug("request enqueued",
		logging.String(logging.FieldEventType, "request_enqueued"),
		logging.Duration("timeout", timeout),
		logging.Int("pending", b.queue.Len()),
	)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(b.lifetime, cancel)
	defer stopWatch()

	result, err := b.table.Await(callCtx, waiter)
	entry.Duration = b.now().Sub(started)
	switch {
	case err == nil:
		return b.complete(req, result, entry)
	case errors.Is(err, correlation.ErrTimeout):
		b.registry.IncTimedOut()
		entry.Outcome = history.OutcomeTimedOut
		entry.Error = ErrTimeout.Error()
		b.recordHistory(entry)
		logging.WarnWithContext(logger, "request timed out waiting for responder", "request_timeout",
			logging.Duration("timeout", timeout),
			logging.Bool("connected", b.monitor.Connected()),
			logging.String(logging.FieldImpact, "caller received a timeout error"),
			logging.String(logging.FieldErrorHint, "check that the responder is polling or connected"),
		)
		return envelope.ErrorResponse(req.ID, envelope.CodeTimeout, "request timed out after "+timeout.String()),
			wrapf(ErrTimeout, "%s after %s", req.Method, timeout)
	case b.lifetime.Err() != nil:
		return b.failStopped(req, entry)
	default:
		b.registry.IncFailed()
		entry.Outcome = history.OutcomeFailed
		entry.Error = describeError(err)
		b.recordHistory(entry)
		logger.Info("caller abandoned request",
			logging.String(logging.FieldEventType, "request_abandoned"),
			logging.Error(err),
		)
		return envelope.ErrorResponse(req.ID, envelope.CodeUnavailable, "request cancelled"), err
	}
}

func (b *Broker) register(deadline time.Time) (string, *correlation.Waiter, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		token := newToken()
		waiter, err := b.table.Register(token, deadline)
		if err == nil {
			return token, waiter, nil
		}
		lastErr = err
	}
	return "", nil, lastErr
}

func (b *Broker) complete(req envelope.Request, result correlation.Result, entry history.Entry) (envelope.Response, error) {
	resp := result.Response
	resp.JSONRPC = envelope.Version
	resp.ID = req.ID
	resp.Token = ""
	entry.Transport = result.Source

	attrs := []logging.Attr{
		logging.String(logging.FieldComponent, "broker"),
		logging.String(logging.FieldCorrelationID, entry.Token),
		logging.String(logging.FieldMethod, req.Method),
		logging.String(logging.FieldEventType, "request_completed"),
		logging.String(logging.FieldTransport, result.Source),
		logging.Duration("duration", entry.Duration),
	}
	if resp.Error != nil {
		b.registry.IncFailed()
		entry.Outcome = history.OutcomeFailed
		entry.Error = resp.Error.Message
		attrs = append(attrs,
			logging.String("outcome", string(history.OutcomeFailed)),
			logging.Int(logging.FieldErrorCode, resp.Error.Code),
			logging.String("error", resp.Error.Message),
		)
	} else {
		b.registry.IncSucceeded()
		entry.Outcome = history.OutcomeSucceeded
		attrs = append(attrs, logging.String("outcome", string(history.OutcomeSucceeded)))
	}
	b.recordHistory(entry)
	b.registry.Record(slog.LevelInfo, "request completed", attrs...)
	return resp, nil
}

func (b *Broker) failStopped(req envelope.Request, entry history.Entry) (envelope.Response, error) {
	b.registry.IncFailed()
	entry.Outcome = history.OutcomeFailed
	entry.Error = ErrStopped.Error()
	if entry.Duration == 0 {
		entry.Duration = b.now().Sub(entry.StartedAt)
	}
	b.recordHistory(entry)
	b.logger.Info("request failed; broker stopping",
		logging.String(logging.FieldEventType, "request_stopped"),
		logging.String(logging.FieldMethod, req.Method),
		logging.String(logging.FieldCorrelationID, entry.Token),
	)
	return envelope.ErrorResponse(req.ID, envelope.CodeUnavailable, "broker is shutting down"), ErrStopped
}

func (b *Broker) recordHistory(entry history.Entry) {
	if b.history == nil {
		return
	}
	b.history.Record(entry)
}
