package testsupport

import (
	"context"
	"testing"

	"relay/internal/config"
	"relay/internal/history"
)

// MustOpenHistory opens the history store under cfg's data dir and registers
// cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustAppend writes entries directly to store.
func MustAppend(t testing.TB, store *history.Store, entries ...history.Entry) {
	t.Helper()

	for _, entry := range entries {
		if _, err := store.Append(context.Background(), entry); err != nil {
			t.Fatalf("store.Append: %v", err)
		}
	}
}
