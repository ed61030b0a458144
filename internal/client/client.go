// Package client talks to a running relay daemon over HTTP. Callers use Call;
// responder-side helpers Poll and Respond drive the poll transport.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"relay/internal/api"
	"relay/internal/envelope"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("relay daemon unavailable")

// Client is an HTTP client for one relay daemon.
type Client struct {
	base *url.URL
	http *http.Client
}

// CallOption customizes a single Call.
type CallOption func(url.Values)

// WithTimeout asks the broker to wait at most d for the responder. The daemon
// caps it at broker.max_request_timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(v url.Values) {
		if d > 0 {
			v.Set("timeout", d.String())
		}
	}
}

// New returns a client for the daemon listening on bind ("host:port" or a URL).
func New(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("client requires http bind")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	// Calls block for the broker timeout; the context bounds each request.
	return &Client{base: base, http: &http.Client{}}, nil
}

// Call relays method with params through the daemon and decodes the result
// into reply. Responder and broker errors surface as *json2.Error.
func (c *Client) Call(ctx context.Context, method string, params, reply any, opts ...CallOption) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	query := url.Values{}
	for _, opt := range opts {
		opt(query)
	}

	resp, err := c.do(ctx, http.MethodPost, "/request", query, body)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if !isEnvelopeStatus(resp.StatusCode) {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if isNullResult(data) {
		return nil
	}
	return json2.DecodeClientResponse(bytes.NewReader(data), reply)
}

// isNullResult reports a success envelope whose result is a literal null,
// which json2 rejects. reply is left untouched for those.
func isNullResult(data []byte) bool {
	var head struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false
	}
	if len(head.Error) > 0 && !bytes.Equal(bytes.TrimSpace(head.Error), []byte("null")) {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(head.Result), []byte("null"))
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var status api.Status
	err := c.getJSON(ctx, "/api/status", nil, &status)
	return status, err
}

// History fetches up to limit recent calls. limit <= 0 uses the daemon default.
func (c *Client) History(ctx context.Context, limit int) (api.HistoryResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out api.HistoryResponse
	err := c.getJSON(ctx, "/api/history", query, &out)
	return out, err
}

// ClearHistory deletes every history row and reports how many were removed.
func (c *Client) ClearHistory(ctx context.Context) (int64, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/api/history", nil, nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}
	var out struct {
		Removed int64 `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode history clear: %w", err)
	}
	return out.Removed, nil
}

// Poll fetches the next pending request. ok is false when nothing is pending.
func (c *Client) Poll(ctx context.Context) (envelope.Request, bool, error) {
	resp, err := c.do(ctx, http.MethodPost, "/poll", nil, nil)
	if err != nil {
		return envelope.Request{}, false, err
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return envelope.Request{}, false, nil
	case http.StatusOK:
		var req envelope.Request
		if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
			return envelope.Request{}, false, fmt.Errorf("decode poll: %w", err)
		}
		return req, true, nil
	default:
		return envelope.Request{}, false, statusError(resp)
	}
}

// Respond submits a result for a polled request. matched is false when the
// caller already timed out.
func (c *Client) Respond(ctx context.Context, result envelope.Response) (bool, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/response", nil, body)
	if err != nil {
		return false, err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return false, statusError(resp)
	}
	var ack struct {
		Matched bool `json:"matched"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return false, fmt.Errorf("decode ack: %w", err)
	}
	return ack.Matched, nil
}

// IsTimeout reports whether err is the broker's responder timeout.
func IsTimeout(err error) bool {
	return hasCode(err, envelope.CodeTimeout)
}

// IsThrottled reports whether the daemon rejected the call for rate.
func IsThrottled(err error) bool {
	return hasCode(err, envelope.CodeThrottled)
}

func hasCode(err error, code int) bool {
	var rpcErr *json2.Error
	return errors.As(err, &rpcErr) && int(rpcErr.Code) == code
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// isEnvelopeStatus lists the /request statuses that carry a JSON-RPC body.
func isEnvelopeStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusBadRequest, http.StatusTooManyRequests,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("relay returned status %d", resp.StatusCode)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
