package poll_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/envelope"
	"relay/internal/poll"
)

func newServer(t *testing.T) (*broker.Broker, *httptest.Server) {
	t.Helper()
	b := broker.New(broker.Options{RequestTimeout: 2 * time.Second})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	mux := http.NewServeMux()
	poll.New(b, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func TestPollIdleReturnsNoContent(t *testing.T) {
	b, srv := newServer(t)

	resp, err := http.Post(srv.URL+"/poll", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.True(t, b.Liveness().Connected, "an idle poll still counts as contact")
	require.Equal(t, broker.TransportPoll, b.Liveness().LastSource)
}

func TestPollDeliversAndResponseResolves(t *testing.T) {
	b, srv := newServer(t)

	done := make(chan envelope.Response, 1)
	go func() {
		resp, _ := b.Call(context.Background(), []byte(`{"jsonrpc":"2.0","method":"test_method","params":{"foo":"bar"},"id":1}`), 0)
		done <- resp
	}()

	var req envelope.Request
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/poll")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&req) == nil
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "test_method", req.Method)
	require.NotEmpty(t, req.Token)

	body := `{"jsonrpc":"2.0","result":"success","id":1,"_broker_uuid":"` + req.Token + `"}`
	resp, err := http.Post(srv.URL+"/response", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var ack poll.SubmitAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, poll.SubmitAck{Status: "ok", Matched: true}, ack)

	select {
	case result := <-done:
		require.Equal(t, `"success"`, string(result.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("caller was not resolved")
	}
}

func TestResponseUnknownTokenIsAccepted(t *testing.T) {
	b, srv := newServer(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/response", "application/json", strings.NewReader(`{"_broker_uuid":"nope","result":1}`))
		require.NoError(t, err)
		var ack poll.SubmitAck
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.False(t, ack.Matched)
	}
	require.Equal(t, uint64(2), b.Stats().Unmatched)
}

func TestResponseRejectsInvalidJSON(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Post(srv.URL+"/response", "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPollRejectsOtherMethods(t *testing.T) {
	_, srv := newServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/poll", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
