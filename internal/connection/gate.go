package connection

import (
	"context"
	"sync"
)

// sendGate is a FIFO lock. Waiters are granted ownership strictly in the
// order they called acquire, so queued sends transmit in issue order.
type sendGate struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// acquire blocks until the caller owns the gate or ctx is done.
func (g *sendGate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	for i, w := range g.waiters {
		if w == ch {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.mu.Unlock()
			return ctx.Err()
		}
	}
	g.mu.Unlock()

	// Ownership was handed to us while ctx fired; pass it on.
	g.release()
	return ctx.Err()
}

// release hands the gate to the oldest waiter, if any.
func (g *sendGate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.waiters) == 0 {
		g.busy = false
		return
	}
	next := g.waiters[0]
	g.waiters[0] = nil
	g.waiters = g.waiters[1:]
	close(next)
}

// pending returns the owner plus queued waiters.
func (g *sendGate) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy {
		return 0
	}
	return 1 + len(g.waiters)
}
