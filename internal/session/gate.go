package session

import "sync"

// Gate admits at most one live session at a time. Share one Gate between all
// sessions that compete for the same capture device.
type Gate struct {
	mu     sync.Mutex
	holder string
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Acquire claims the gate for id without queuing. The returned release
// function is idempotent and only frees the gate if id still holds it.
func (g *Gate) Acquire(id string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder != "" {
		return nil, false
	}
	g.holder = id

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.holder == id {
				g.holder = ""
			}
		})
	}, true
}

// Holder returns the id currently holding the gate, or "".
func (g *Gate) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}
