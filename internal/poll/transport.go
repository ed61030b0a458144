// Package poll lets a responder fetch requests and return results over plain
// HTTP when it cannot hold a connection open.
package poll

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"relay/internal/broker"
	"relay/internal/envelope"
	"relay/internal/logging"
)

const maxResultBytes = envelope.MaxLineBytes

// SubmitAck is the body returned from POST /response.
type SubmitAck struct {
	Status  string `json:"status"`
	Matched bool   `json:"matched"`
}

// Transport adapts a broker.Responder to the poll endpoints.
type Transport struct {
	responder broker.Responder
	logger    *slog.Logger
}

// New returns a poll transport over responder.
func New(responder broker.Responder, logger *slog.Logger) *Transport {
	return &Transport{
		responder: responder,
		logger:    logging.NewComponentLogger(logger, "poll"),
	}
}

// PollNext records contact and hands out the oldest pending request, if any.
func (t *Transport) PollNext() (envelope.Request, bool) {
	t.responder.Touch(broker.TransportPoll)
	return t.responder.TryNext()
}

// SubmitResult records contact and routes resp to its caller.
func (t *Transport) SubmitResult(resp envelope.Response) bool {
	return t.responder.Submit(resp, broker.TransportPoll)
}

// Register mounts the poll endpoints on mux.
func (t *Transport) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /poll", t.handlePoll)
	mux.HandleFunc("GET /poll", t.handlePoll)
	mux.HandleFunc("POST /response", t.handleResponse)
}

func (t *Transport) handlePoll(w http.ResponseWriter, _ *http.Request) {
	req, ok := t.PollNext()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	t.writeJSON(w, http.StatusOK, req)
}

func (t *Transport) handleResponse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResultBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			t.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "result too large"})
			return
		}
		t.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body failed"})
		return
	}
	resp, err := envelope.ParseResponse(body)
	if err != nil {
		t.responder.Touch(broker.TransportPoll)
		logging.WarnWithContext(t.logger, "rejected unparseable result", "result_malformed",
			logging.Error(err),
			logging.String(logging.FieldRemoteAddr, r.RemoteAddr),
			logging.String(logging.FieldImpact, "the waiting caller will time out"),
			logging.String(logging.FieldErrorHint, "responder must POST a JSON object with _broker_uuid"),
		)
		t.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	matched := t.SubmitResult(resp)
	t.writeJSON(w, http.StatusOK, SubmitAck{Status: "ok", Matched: matched})
}

func (t *Transport) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.logger.Debug("failed to encode response", logging.Error(err))
	}
}
