package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualTicks is a TickSource driven by the test.
type manualTicks struct {
	ch      chan time.Time
	stopped atomic.Int32
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time)}
}

func (m *manualTicks) source(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() { m.stopped.Add(1) }
}

func TestServiceTicksUntilStopped(t *testing.T) {
	ticks := newManualTicks()
	svc := New(ticks.source)

	var count atomic.Int32
	svc.Start(func() { count.Add(1) })
	require.True(t, svc.Running())

	for i := 0; i < 3; i++ {
		ticks.ch <- time.Now()
	}
	require.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, time.Millisecond)

	svc.Stop()
	require.False(t, svc.Running())
	require.Equal(t, int32(1), ticks.stopped.Load())

	select {
	case ticks.ch <- time.Now():
		t.Fatal("tick delivered after stop")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(t, int32(3), count.Load())
}

func TestServiceStopIsIdempotent(t *testing.T) {
	svc := New(newManualTicks().source)
	svc.Stop()

	svc.Start(func() {})
	svc.Stop()
	svc.Stop()
	require.False(t, svc.Running())
}

func TestServiceStartTwiceKeepsOneTicker(t *testing.T) {
	ticks := newManualTicks()
	svc := New(ticks.source)

	var count atomic.Int32
	svc.Start(func() { count.Add(1) })
	svc.Start(func() { count.Add(100) })

	ticks.ch <- time.Now()
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)
	svc.Stop()
}

func TestServiceRestartAfterStop(t *testing.T) {
	ticks := newManualTicks()
	svc := New(ticks.source)

	var count atomic.Int32
	svc.Start(func() { count.Add(1) })
	ticks.ch <- time.Now()
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)
	svc.Stop()

	svc.Start(func() { count.Add(1) })
	ticks.ch <- time.Now()
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, time.Millisecond)
	svc.Stop()
	require.Equal(t, int32(2), ticks.stopped.Load())
}

func TestServiceRealTicks(t *testing.T) {
	svc := NewWithInterval(5*time.Millisecond, nil)

	var count atomic.Int32
	svc.Start(func() { count.Add(1) })
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, time.Millisecond)
	svc.Stop()

	seen := count.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, seen, count.Load())
}
