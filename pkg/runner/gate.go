package runner

import (
	"context"
	"sync"
)

// PauseGate blocks callers of Wait while paused.
// The zero value is an open gate. Safe for concurrent use.
type PauseGate struct {
	mu     sync.Mutex
	resume chan struct{} // nil while open
}

// Pause closes the gate. Pausing a paused gate is a no-op.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resume == nil {
		g.resume = make(chan struct{})
	}
}

// Resume opens the gate and releases every waiter.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resume != nil {
		close(g.resume)
		g.resume = nil
	}
}

// Paused reports whether the gate is closed.
func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resume != nil
}

// Wait returns immediately while the gate is open; otherwise it blocks
// until Resume or until ctx is done.
func (g *PauseGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.resume
		g.mu.Unlock()
		if ch == nil {
			return ctx.Err()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
