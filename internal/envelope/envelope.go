// Package envelope defines the JSON-RPC shapes exchanged between callers, the
// broker and the responder, plus the newline-delimited codec used by the
// persistent-socket transport.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the JSON-RPC protocol version stamped on every envelope.
const Version = "2.0"

// JSON-RPC error codes produced by the broker.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeTimeout        = -32000
	CodeUnavailable    = -32001
	CodeThrottled      = -32002
)

// ErrMalformed reports a body that is not a usable request or response envelope.
var ErrMalformed = errors.New("malformed envelope")

// Request is a call travelling from the caller to the responder. Token is the
// broker-assigned correlation token and is distinct from the caller-owned ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Token   string          `json:"_broker_uuid,omitempty"`
}

// Response is the responder's reply to a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Token   string          `json:"_broker_uuid,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsError reports whether the responder answered with an error object.
func (r Response) IsError() bool {
	return r.Error != nil
}

// ParseRequest decodes a caller body. The returned error wraps ErrMalformed
// and the returned *Error carries the matching JSON-RPC code.
func ParseRequest(body []byte) (Request, *Error, error) {
	var req Request
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return req, &Error{Code: CodeInvalidRequest, Message: "empty request body"}, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, &Error{Code: CodeParseError, Message: "parse error"}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(req.Method) == "" {
		return req, &Error{Code: CodeInvalidRequest, Message: "method is required"}, fmt.Errorf("%w: missing method", ErrMalformed)
	}
	if req.JSONRPC == "" {
		req.JSONRPC = Version
	}
	return req, nil, nil
}

// ParseResponse decodes a responder result. Only the token is required;
// result and error are passed through to the caller untouched.
func ParseResponse(body []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(body), &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.JSONRPC == "" {
		resp.JSONRPC = Version
	}
	return resp, nil
}

// ErrorResponse builds an error envelope for the given caller id.
func ErrorResponse(id json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}
