package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned to a waiting caller when a newer call
// replaces it in the gate's single waiting slot. The superseded
// operation never ran; callers treat this as a no-op, not a failure.
var ErrSuperseded = errors.New("gate: superseded by a newer operation")

type waiter struct {
	ready      chan struct{} // closed when the slot is handed to this waiter
	superseded chan struct{} // closed when a newer waiter replaces this one
}

// Gate is a single-slot serialization cell. The zero value is ready to
// use.
type Gate struct {
	mu      sync.Mutex
	busy    bool
	pending *waiter
}

// Run executes fn while holding the gate. If the gate is busy, Run
// waits in the single pending slot; a subsequent Run call cancels the
// wait and returns ErrSuperseded without executing fn. Context
// cancellation aborts only the wait, never a running fn.
func (g *Gate) Run(ctx context.Context, fn func() error) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		defer g.release()
		return fn()
	}

	w := &waiter{
		ready:      make(chan struct{}),
		superseded: make(chan struct{}),
	}
	if g.pending != nil {
		close(g.pending.superseded)
	}
	g.pending = w
	g.mu.Unlock()

	select {
	case <-w.ready:
		defer g.release()
		return fn()
	case <-w.superseded:
		return ErrSuperseded
	case <-ctx.Done():
		g.mu.Lock()
		if g.pending == w {
			g.pending = nil
			g.mu.Unlock()
			return ctx.Err()
		}
		g.mu.Unlock()
		// The slot was resolved concurrently with cancellation: either
		// it was handed to us (and must be returned) or we were
		// superseded.
		select {
		case <-w.ready:
			g.release()
			return ctx.Err()
		case <-w.superseded:
			return ErrSuperseded
		}
	}
}

// release hands the gate to the pending waiter if one exists, otherwise
// marks the gate idle.
func (g *Gate) release() {
	g.mu.Lock()
	if g.pending != nil {
		w := g.pending
		g.pending = nil
		g.mu.Unlock()
		close(w.ready)
		return
	}
	g.busy = false
	g.mu.Unlock()
}
