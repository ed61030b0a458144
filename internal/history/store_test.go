package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/history"
	"relay/internal/logging"
	"relay/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, method := range []string{"first", "second", "third"} {
		id, err := store.Append(ctx, history.Entry{
			Token:     method + "-token",
			Method:    method,
			CallerID:  "1",
			Outcome:   history.OutcomeSucceeded,
			Transport: "poll",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			Duration:  250 * time.Millisecond,
		})
		require.NoError(t, err)
		require.Equal(t, int64(i+1), id)
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "third", entries[0].Method, "newest first")
	require.Equal(t, "second", entries[1].Method)

	got := entries[0]
	require.Equal(t, 250*time.Millisecond, got.Duration)
	require.True(t, got.StartedAt.Equal(base.Add(2*time.Second)), "started_at %s", got.StartedAt)
	require.Equal(t, "poll", got.Transport)
	require.Equal(t, "1", got.CallerID)
	require.Equal(t, history.OutcomeSucceeded, got.Outcome)
}

func TestPruneAndClear(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, started := range []time.Time{now.AddDate(0, 0, -40), now.AddDate(0, 0, -1), now} {
		testsupport.MustAppend(t, store, history.Entry{
			Token:     "t",
			Method:    "m",
			Outcome:   history.OutcomeTimedOut,
			Error:     "timeout",
			StartedAt: started,
		})
	}

	removed, err := store.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	cleared, err := store.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), cleared)
	count, err = store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	require.NoError(t, err)
	testsupport.MustAppend(t, store, history.Entry{Token: "t", Method: "m", Outcome: history.OutcomeFailed})
	require.NoError(t, store.Close())

	reopened, err := history.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRecorderDrainsOnClose(t *testing.T) {
	store := openStore(t)
	recorder := history.NewRecorder(store, 16, logging.NewNop())

	for i := range 5 {
		require.True(t, recorder.Record(history.Entry{Token: "t", Method: "m", Outcome: history.OutcomeSucceeded}), "record %d", i)
	}
	recorder.Close()
	recorder.Close()

	require.Equal(t, uint64(5), recorder.Written())
	require.Zero(t, recorder.Dropped())
	require.False(t, recorder.Record(history.Entry{Token: "late"}), "closed recorder rejects entries")

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *history.Recorder
	require.False(t, recorder.Record(history.Entry{}))
	require.Zero(t, recorder.Written())
	require.Zero(t, recorder.Dropped())
	recorder.Close()
}
