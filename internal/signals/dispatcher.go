package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// Handler runs on the dispatcher's delivery goroutine for each signal received.
type Handler func(os.Signal)

type entry struct {
	handler Handler
	guard   *Guard
	ch      chan os.Signal
	// flush asks the delivery goroutine to acknowledge once every signal it
	// already took from ch has been routed.
	flush chan chan struct{}
}

// Dispatcher is a registry of one handler per signal. It subscribes to a
// signal while a handler or a guard needs it and unsubscribes afterwards,
// which restores the signal's default disposition.
type Dispatcher struct {
	mu      sync.Mutex
	entries map[os.Signal]*entry

	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
}

// NewDispatcher returns a dispatcher wired to os/signal.
func NewDispatcher() *Dispatcher {
	return newDispatcher(signal.Notify, signal.Stop)
}

func newDispatcher(notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal)) *Dispatcher {
	return &Dispatcher{
		entries: make(map[os.Signal]*entry),
		notify:  notify,
		stop:    stop,
	}
}

// Handle installs h for sig, replacing any previous handler. A nil handler
// restores the default disposition. It fails with ErrNotPrimary outside the
// primary flow and with a *GuardMisuseError while a guard defers sig.
func (d *Dispatcher) Handle(ctx context.Context, sig os.Signal, h Handler) error {
	if !IsPrimary(ctx) {
		return ErrNotPrimary
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entries[sig]
	if e != nil && e.guard != nil {
		return &GuardMisuseError{Signal: sig, Op: "set signal handler"}
	}
	if h == nil {
		if e != nil {
			e.handler = nil
			d.releaseLocked(sig, e, nil)
		}
		return nil
	}
	e = d.subscribeLocked(sig)
	e.handler = h
	return nil
}

// Installed reports whether a handler is installed for sig.
func (d *Dispatcher) Installed(sig os.Signal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[sig]
	return e != nil && e.handler != nil
}

// Deferring reports whether a guard currently defers sig.
func (d *Dispatcher) Deferring(sig os.Signal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[sig]
	return e != nil && e.guard != nil
}

// Pending reports whether a guard defers sig and the signal has arrived.
func (d *Dispatcher) Pending(sig os.Signal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[sig]
	return e != nil && e.guard != nil && e.guard.Pending()
}

func (d *Dispatcher) subscribeLocked(sig os.Signal) *entry {
	e := d.entries[sig]
	if e == nil {
		e = &entry{}
		d.entries[sig] = e
	}
	if e.ch == nil {
		// Buffered so a burst arriving while the previous delivery runs is not dropped.
		e.ch = make(chan os.Signal, 4)
		e.flush = make(chan chan struct{})
		d.notify(e.ch, sig)
		go d.loop(e.ch, e.flush)
	}
	return e
}

// releaseLocked unsubscribes e once nothing needs it. Signals still buffered
// after the unsubscribe are credited to g, the guard being left, if any.
func (d *Dispatcher) releaseLocked(sig os.Signal, e *entry, g *Guard) {
	if e.handler != nil || e.guard != nil {
		return
	}
	if e.ch != nil {
		d.stop(e.ch)
		drainInto(e.ch, g)
		close(e.ch)
		e.ch = nil
		e.flush = nil
	}
	delete(d.entries, sig)
}

// drainInto empties ch without blocking, marking g pending for every signal
// found.
func drainInto(ch chan os.Signal, g *Guard) {
	for {
		select {
		case <-ch:
			if g != nil {
				g.pending.Store(true)
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) loop(ch <-chan os.Signal, flush <-chan chan struct{}) {
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(sig)
		case ack := <-flush:
			close(ack)
		}
	}
}

// deliver routes one signal to the active guard or, failing that, the handler.
// The handler runs without the lock so it may reinstall handlers itself.
func (d *Dispatcher) deliver(sig os.Signal) {
	d.mu.Lock()
	e := d.entries[sig]
	if e == nil {
		d.mu.Unlock()
		return
	}
	if e.guard != nil {
		e.guard.pending.Store(true)
		d.mu.Unlock()
		return
	}
	h := e.handler
	d.mu.Unlock()

	if h != nil {
		h(sig)
	}
}

// Enter starts deferring sig. Outside the primary flow it returns an inert
// guard whose Exit passes errors through untouched. A second guard for the
// same signal is rejected with a *GuardMisuseError.
func (d *Dispatcher) Enter(ctx context.Context, sig os.Signal) (*Guard, error) {
	if !IsPrimary(ctx) {
		return &Guard{sig: sig}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if e := d.entries[sig]; e != nil && e.guard != nil {
		return nil, &GuardMisuseError{Signal: sig, Op: "defer signal"}
	}
	e := d.subscribeLocked(sig)
	g := &Guard{d: d, sig: sig}
	e.guard = g
	return g, nil
}

// Deferred runs fn with sig deferred. fn's error is returned unchanged; if fn
// succeeds while sig arrived, Deferred returns an *InterruptedError. A panic in
// fn restores the previous handler before propagating.
func (d *Dispatcher) Deferred(ctx context.Context, sig os.Signal, fn func(context.Context) error) error {
	g, err := d.Enter(ctx, sig)
	if err != nil {
		return err
	}
	completed := false
	defer func() {
		if !completed {
			g.release()
		}
	}()
	bodyErr := fn(ctx)
	completed = true
	return g.Exit(bodyErr)
}

// leave ends g. Signals the delivery goroutine took before leave, and those
// still buffered, count against g rather than the handler restored after it.
// It must not be called from a Handler, which runs on the delivery goroutine.
func (d *Dispatcher) leave(g *Guard) bool {
	d.mu.Lock()
	e := d.entries[g.sig]
	if e == nil || e.guard != g {
		d.mu.Unlock()
		return false
	}
	flush := e.flush
	d.mu.Unlock()

	// The active guard keeps the entry subscribed, so the delivery goroutine
	// is alive to answer.
	ack := make(chan struct{})
	flush <- ack
	<-ack

	d.mu.Lock()
	defer d.mu.Unlock()
	drainInto(e.ch, g)
	e.guard = nil
	d.releaseLocked(g.sig, e, g)
	return true
}

var defaultDispatcher = NewDispatcher()

// Default returns the process-wide dispatcher.
func Default() *Dispatcher {
	return defaultDispatcher
}

// Handle installs h for sig on the default dispatcher.
func Handle(ctx context.Context, sig os.Signal, h Handler) error {
	return defaultDispatcher.Handle(ctx, sig, h)
}

// Installed reports whether the default dispatcher has a handler for sig.
func Installed(sig os.Signal) bool {
	return defaultDispatcher.Installed(sig)
}

// Enter starts deferring sig on the default dispatcher.
func Enter(ctx context.Context, sig os.Signal) (*Guard, error) {
	return defaultDispatcher.Enter(ctx, sig)
}

// Deferred runs fn with sig deferred on the default dispatcher.
func Deferred(ctx context.Context, sig os.Signal, fn func(context.Context) error) error {
	return defaultDispatcher.Deferred(ctx, sig, fn)
}
