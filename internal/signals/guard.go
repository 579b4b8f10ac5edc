package signals

import (
	"os"
	"sync/atomic"
)

// Guard is one active deferral of a signal. The zero dispatcher marks an
// inert guard created outside the primary flow.
type Guard struct {
	d       *Dispatcher
	sig     os.Signal
	pending atomic.Bool
	exited  atomic.Bool
}

// Signal returns the deferred signal.
func (g *Guard) Signal() os.Signal {
	return g.sig
}

// Active reports whether the guard is intercepting its signal.
func (g *Guard) Active() bool {
	return g.d != nil && !g.exited.Load()
}

// Pending reports whether the signal arrived since Enter.
func (g *Guard) Pending() bool {
	return g.pending.Load()
}

// Exit restores the handler that was in place before Enter and reports the
// outcome of the critical section. A non-nil err is returned unchanged; a nil
// err becomes an *InterruptedError when the signal arrived. Only the first
// Exit can report the interruption.
func (g *Guard) Exit(err error) error {
	if !g.release() {
		return err
	}
	if err != nil {
		return err
	}
	if g.pending.Load() {
		return &InterruptedError{Signal: g.sig}
	}
	return nil
}

func (g *Guard) release() bool {
	if g.d == nil {
		return false
	}
	if !g.exited.CompareAndSwap(false, true) {
		return false
	}
	return g.d.leave(g)
}
