// Package timer provides the one-second elapsed ticker bound to a recording.
package timer

import (
	"sync"
	"time"
)

// TickSource creates a ticker channel and its stop function.
type TickSource func(interval time.Duration) (<-chan time.Time, func())

// RealTicks is the wall-clock TickSource.
func RealTicks(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// Service fires onTick once per interval while active.
type Service struct {
	interval time.Duration
	source   TickSource

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// New constructs a one-second Service. A nil source uses RealTicks.
func New(source TickSource) *Service {
	return NewWithInterval(time.Second, source)
}

// NewWithInterval constructs a Service with a custom tick interval.
func NewWithInterval(interval time.Duration, source TickSource) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	if source == nil {
		source = RealTicks
	}
	return &Service{interval: interval, source: source}
}

// Start begins ticking. Starting an already running Service is a no-op.
func (s *Service) Start(onTick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ticks, stopTicks := s.source(s.interval)
	s.running = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go func(quit <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer stopTicks()
		for {
			select {
			case <-quit:
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				// A stop racing with a tick must win.
				select {
				case <-quit:
					return
				default:
				}
				if onTick != nil {
					onTick()
				}
			}
		}
	}(s.quit, s.done)
}

// Stop halts ticking and waits for the tick goroutine to exit, so no onTick
// call happens after Stop returns. Stop is idempotent. It must not be called
// from inside onTick.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	done := s.done
	s.mu.Unlock()

	<-done
}

// Running reports whether the Service is currently ticking.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
