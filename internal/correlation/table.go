// Package correlation pairs broker-assigned tokens with the caller blocked on
// them.
//
// Each live token owns a single-slot result channel and a deadline. Exactly
// one of Resolve or the deadline wins; whichever loses finds the entry gone
// and becomes a no-op.
package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"relay/internal/envelope"
)

var (
	// ErrDuplicate is returned when a token is registered twice.
	ErrDuplicate = errors.New("correlation token already registered")
	// ErrTimeout is returned by Await once the entry's deadline passes.
	ErrTimeout = errors.New("correlation deadline exceeded")
)

// Result is a responder reply delivered to a waiting caller.
type Result struct {
	Response envelope.Response
	// Source names the transport that delivered the reply.
	Source string
}

// Waiter is the caller-side handle returned by Register.
type Waiter struct {
	token    string
	deadline time.Time
	slot     chan Result
}

// Token returns the correlation token this waiter is bound to.
func (w *Waiter) Token() string { return w.token }

// Table maps live tokens to waiters.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Waiter
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]*Waiter)}
}

// Register creates the entry for token.
func (t *Table) Register(token string, deadline time.Time) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[token]; exists {
		return nil, ErrDuplicate
	}
	w := &Waiter{
		token:    token,
		deadline: deadline,
		slot:     make(chan Result, 1),
	}
	t.entries[token] = w
	return w, nil
}

// Resolve hands result to the waiter registered for token. It reports false
// when the token is unknown, already resolved, or timed out.
func (t *Table) Resolve(token string, result Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.entries[token]
	if !ok {
		return false
	}
	delete(t.entries, token)
	// The slot holds one value and only the remover sends, so this never blocks.
	w.slot <- result
	return true
}

// Await blocks until the waiter is resolved, its deadline passes, or ctx ends.
// The entry is gone from the table when Await returns.
func (t *Table) Await(ctx context.Context, w *Waiter) (Result, error) {
	timer := time.NewTimer(max(time.Until(w.deadline), 0))
	defer timer.Stop()

	select {
	case result := <-w.slot:
		return result, nil
	case <-timer.C:
		return t.abandon(w, ErrTimeout)
	case <-ctx.Done():
		return t.abandon(w, ctx.Err())
	}
}

// abandon removes w unless a resolver already did. Resolve fills the slot
// under the same lock, so a missing entry means the result is waiting.
func (t *Table) abandon(w *Waiter, cause error) (Result, error) {
	t.mu.Lock()
	current, ok := t.entries[w.token]
	if ok && current == w {
		delete(t.entries, w.token)
		t.mu.Unlock()
		return Result{}, cause
	}
	t.mu.Unlock()

	return <-w.slot, nil
}

// Len reports the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Has reports whether token is live.
func (t *Table) Has(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[token]
	return ok
}
