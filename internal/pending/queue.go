// Package pending holds relayed requests that no responder transport has
// picked up yet.
//
// The queue is strictly FIFO and shared by the poll and socket transports.
// Removal is the delivery: an item leaves the queue through exactly one
// TryDequeue or Dequeue call and is never put back.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Dequeue once the queue has been closed.
var ErrClosed = errors.New("pending queue closed")

// Item is a request waiting for delivery to the responder.
type Item struct {
	Token      string
	Method     string
	Params     json.RawMessage
	CallerID   json.RawMessage
	EnqueuedAt time.Time
}

// Queue is a mutex-guarded FIFO with blocking and non-blocking dequeue.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	signal chan struct{}
	closed bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{})}
}

// Enqueue appends item to the tail and wakes blocked dequeuers. It reports
// false when the queue is closed.
func (q *Queue) Enqueue(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	q.items = append(q.items, item)
	q.broadcastLocked()
	return true
}

// TryDequeue removes the head without blocking.
func (q *Queue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Dequeue blocks until an item is available, ctx ends, or the queue closes.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return Item{}, err
		}
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Item{}, ErrClosed
		}
		wait := q.signal
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-wait:
		}
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close fails every blocked and future Dequeue and drops queued items.
// It returns the items that were still waiting.
func (q *Queue) Close() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	remaining := q.items
	q.items = nil
	q.broadcastLocked()
	return remaining
}

func (q *Queue) popLocked() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return item, true
}

// broadcastLocked wakes every waiter by closing the current signal channel.
func (q *Queue) broadcastLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}
