// Package signals owns the process's signal handlers and lets critical
// sections postpone one signal until they finish.
//
// All handler installation goes through a Dispatcher (the package-level
// functions use a process-wide one). While a Guard for a signal is active the
// Dispatcher records deliveries of that signal instead of running the
// installed handler, and rejects any attempt to install a competing handler
// with a *GuardMisuseError. When the guarded body returns without error and a
// signal arrived, the guard reports an *InterruptedError, which satisfies both
// errors.Is(err, ErrDeferredInterrupt) and errors.Is(err, context.Canceled).
//
// Handler installation and guards are only honored on the primary flow: a
// context marked with Primary. Guards entered from any other context are
// pass-through, so code shared between the primary flow and worker goroutines
// can wrap itself unconditionally.
package signals
