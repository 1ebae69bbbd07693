package api

import (
	"context"
	"sync"
)

// Gate queues outbound requests while a token refresh is in flight.
// An open gate lets Wait return immediately.
type Gate struct {
	mu     sync.Mutex
	closed chan struct{} // nil while open
}

func NewGate() *Gate {
	return &Gate{}
}

// Hold closes the gate. Holding an already held gate is a no-op.
func (g *Gate) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed == nil {
		g.closed = make(chan struct{})
	}
}

// Release opens the gate and lets every queued request proceed.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed != nil {
		close(g.closed)
		g.closed = nil
	}
}

// Held reports whether requests are currently queued behind the gate.
func (g *Gate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed != nil
}

// Wait blocks until the gate is open or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.closed
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
