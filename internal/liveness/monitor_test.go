package liveness_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay/internal/liveness"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMonitorNeverContacted(t *testing.T) {
	m := liveness.New(5 * time.Second)
	state := m.Snapshot()
	require.False(t, state.Connected)
	require.Nil(t, state.LastContactAt)
	require.Equal(t, 5*time.Second, state.Threshold)
}

func TestMonitorThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := liveness.New(5*time.Second, liveness.WithClock(clock.Now))

	m.Touch("poll")
	clock.Advance(2 * time.Second)
	require.True(t, m.Connected(), "2s after contact should be connected")

	clock.Advance(4 * time.Second)
	state := m.Snapshot()
	require.False(t, state.Connected, "6s after contact should be disconnected")
	require.Equal(t, "poll", state.LastSource)
	require.NotNil(t, state.LastContactAt)

	m.Touch("socket")
	require.True(t, m.Connected())
	require.Equal(t, "socket", m.Snapshot().LastSource)
}

func TestMonitorExactThresholdIsDisconnected(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := liveness.New(5*time.Second, liveness.WithClock(clock.Now))
	m.Touch("poll")
	clock.Advance(5 * time.Second)
	require.False(t, m.Connected())
}

func TestMonitorDefaultThreshold(t *testing.T) {
	require.Equal(t, liveness.DefaultThreshold, liveness.New(0).Snapshot().Threshold)
}
