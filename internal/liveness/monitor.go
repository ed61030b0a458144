// Package liveness derives whether the responder is reachable from the time
// of its most recent contact.
package liveness

import (
	"sync"
	"time"
)

// DefaultThreshold is the contact window used when none is configured.
const DefaultThreshold = 5 * time.Second

// State is a point-in-time view of responder liveness.
type State struct {
	Connected     bool
	LastContactAt *time.Time
	LastSource    string
	Threshold     time.Duration
}

// Monitor records responder contact. Connected is recomputed on every read.
type Monitor struct {
	mu          sync.RWMutex
	threshold   time.Duration
	lastContact time.Time
	lastSource  string
	now         func() time.Time
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a monitor with the given threshold.
func New(threshold time.Duration, opts ...Option) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Monitor{threshold: threshold, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Touch records contact from source ("poll", "socket").
func (m *Monitor) Touch(source string) {
	now := m.now()
	m.mu.Lock()
	m.lastContact = now
	m.lastSource = source
	m.mu.Unlock()
}

// Connected reports whether the last contact is within the threshold.
func (m *Monitor) Connected() bool {
	return m.Snapshot().Connected
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() State {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := State{Threshold: m.threshold, LastSource: m.lastSource}
	if m.lastContact.IsZero() {
		return state
	}
	last := m.lastContact
	state.LastContactAt = &last
	state.Connected = now.Sub(last) < m.threshold
	return state
}
