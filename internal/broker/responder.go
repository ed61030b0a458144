package broker

import (
	"context"

	"relay/internal/correlation"
	"relay/internal/envelope"
	"relay/internal/logging"
	"relay/internal/pending"
)

var _ Responder = (*Broker)(nil)

// TryNext implements Responder for the poll transport. Requests whose caller
// already timed out are discarded instead of delivered.
func (b *Broker) TryNext() (envelope.Request, bool) {
	for {
		item, ok := b.queue.TryDequeue()
		if !ok {
			return envelope.Request{}, false
		}
		if req, live := b.deliver(item, TransportPoll); live {
			return req, true
		}
	}
}

// Next implements Responder for the socket transport.
func (b *Broker) Next(ctx context.Context) (envelope.Request, error) {
	for {
		item, err := b.queue.Dequeue(ctx)
		if err != nil {
			return envelope.Request{}, err
		}
		if req, live := b.deliver(item, TransportSocket); live {
			return req, nil
		}
	}
}

func (b *Broker) deliver(item pending.Item, transport string) (envelope.Request, bool) {
	if !b.table.Has(item.Token) {
		b.logger.Debug("skipping expired request",
			logging.String(logging.FieldEventType, "request_expired"),
			logging.String(logging.FieldCorrelationID, item.Token),
			logging.String(logging.FieldMethod, item.Method),
		)
		return envelope.Request{}, false
	}
	b.registry.IncDelivered()
	b.logger.Debug("request delivered",
		logging.String(logging.FieldEventType, "request_delivered"),
		logging.String(logging.FieldCorrelationID, item.Token),
		logging.String(logging.FieldMethod, item.Method),
		logging.String(logging.FieldTransport, transport),
		logging.Duration("queued", b.now().Sub(item.EnqueuedAt)),
	)
	return envelope.Request{
		JSONRPC: envelope.Version,
		Method:  item.Method,
		Params:  item.Params,
		ID:      item.CallerID,
		Token:   item.Token,
	}, true
}

// Submit implements Responder. Results for unknown or settled tokens are
// discarded and counted as unmatched.
func (b *Broker) Submit(resp envelope.Response, source string) bool {
	b.monitor.Touch(source)
	if resp.Token == "" {
		b.registry.IncUnmatched()
		b.logger.Debug("discarding result without token",
			logging.String(logging.FieldEventType, "result_unmatched"),
			logging.String(logging.FieldTransport, source),
		)
		return false
	}
	if !b.table.Resolve(resp.Token, correlation.Result{Response: resp, Source: source}) {
		b.registry.IncUnmatched()
		b.logger.Debug("discarding result for unknown token",
			logging.String(logging.FieldEventType, "result_unmatched"),
			logging.String(logging.FieldCorrelationID, resp.Token),
			logging.String(logging.FieldTransport, source),
		)
		return false
	}
	return true
}

// Touch implements Responder.
func (b *Broker) Touch(source string) {
	b.monitor.Touch(source)
}
