package correlation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/correlation"
	"relay/internal/envelope"
)

func result(value string) correlation.Result {
	return correlation.Result{
		Response: envelope.Response{JSONRPC: envelope.Version, Result: json.RawMessage(fmt.Sprintf("%q", value))},
		Source:   "poll",
	}
}

func TestRegisterResolveAwait(t *testing.T) {
	table := correlation.New()
	w, err := table.Register("tok", time.Now().Add(time.Second))
	require.NoError(t, err)
	require.True(t, table.Has("tok"))
	require.Equal(t, "tok", w.Token())

	go func() {
		time.Sleep(10 * time.Millisecond)
		table.Resolve("tok", result("success"))
	}()

	got, err := table.Await(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, `"success"`, string(got.Response.Result))
	require.Equal(t, "poll", got.Source)
	require.False(t, table.Has("tok"))
	require.Equal(t, 0, table.Len())
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	table := correlation.New()
	_, err := table.Register("tok", time.Now().Add(time.Second))
	require.NoError(t, err)
	_, err = table.Register("tok", time.Now().Add(time.Second))
	require.ErrorIs(t, err, correlation.ErrDuplicate)
}

func TestAwaitTimesOutAndLateResolveIsNoop(t *testing.T) {
	table := correlation.New()
	w, err := table.Register("tok", time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = table.Await(context.Background(), w)
	require.ErrorIs(t, err, correlation.ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	require.False(t, table.Has("tok"))

	require.False(t, table.Resolve("tok", result("late")))
}

func TestResolveUnknownToken(t *testing.T) {
	table := correlation.New()
	require.False(t, table.Resolve("missing", result("x")))
}

func TestDoubleResolveAcceptsFirstOnly(t *testing.T) {
	table := correlation.New()
	w, err := table.Register("tok", time.Now().Add(time.Second))
	require.NoError(t, err)

	require.True(t, table.Resolve("tok", result("first")))
	require.False(t, table.Resolve("tok", result("second")))

	got, err := table.Await(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, `"first"`, string(got.Response.Result))
}

func TestAwaitContextCancelled(t *testing.T) {
	table := correlation.New()
	w, err := table.Register("tok", time.Now().Add(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = table.Await(ctx, w)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, table.Has("tok"))
}

func TestResolveRacingDeadlineHasOneWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		table := correlation.New()
		w, err := table.Register("tok", time.Now().Add(time.Millisecond))
		require.NoError(t, err)

		var resolved atomic.Bool
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			resolved.Store(table.Resolve("tok", result("maybe")))
		}()

		_, awaitErr := table.Await(context.Background(), w)
		wg.Wait()
		if resolved.Load() {
			require.NoError(t, awaitErr, "resolver won but caller saw an error")
		} else {
			require.ErrorIs(t, awaitErr, correlation.ErrTimeout)
		}
	}
}
