package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/logging"
)

// Recorder writes entries to a Store from a background goroutine.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	entries chan Entry
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder starts a recorder draining into store. buffer bounds how many
// entries may wait for the database.
func NewRecorder(store *Store, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "history"),
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues entry without blocking. It reports false when the entry was
// dropped because the buffer is full or the recorder is closed.
func (r *Recorder) Record(entry Entry) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.entries <- entry:
		return true
	default:
		if r.dropped.Add(1) == 1 {
			logging.WarnWithContext(r.logger, "history buffer full; dropping entries", "history_dropped",
				logging.String(logging.FieldImpact, "some calls will be missing from history"),
				logging.String(logging.FieldErrorHint, "raise history.buffer_size or check disk latency"),
			)
		}
		return false
	}
}

// Dropped reports how many entries were discarded.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Written reports how many entries reached the store.
func (r *Recorder) Written() uint64 {
	if r == nil {
		return 0
	}
	return r.written.Load()
}

// Close stops accepting entries and waits for the buffer to drain.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := r.store.Append(ctx, entry)
		cancel()
		if err != nil {
			logging.WarnWithContext(r.logger, "history append failed", "history_append_failed",
				logging.Error(err),
				logging.String(logging.FieldCorrelationID, entry.Token),
				logging.String(logging.FieldImpact, "call missing from history"),
				logging.String(logging.FieldErrorHint, "check data_dir permissions and free space"),
			)
			continue
		}
		r.written.Add(1)
	}
}
