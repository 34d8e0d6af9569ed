package lifecycle

import "sync"

// Gate runs a global activation action at most once.
//
// The zero value is ready to use and starts not activated. A Gate moves to
// activated exactly once and never reverts.
type Gate struct {
	mu        sync.Mutex
	activated bool
}

// RunOnce runs action if the gate has not been activated yet, then marks it
// activated. Concurrent callers block until the first caller's action
// returns. The gate is marked activated even when action panics; the panic
// is re-raised to the caller.
//
// action must not call RunOnce on the same gate.
func (g *Gate) RunOnce(action func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.activated {
		return
	}

	defer func() {
		g.activated = true
	}()

	action()
}

// Activated reports whether [Gate.RunOnce] has run its action.
func (g *Gate) Activated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.activated
}
