package signals

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrDeferredInterrupt matches the error returned when a guarded section
// completed while its signal was pending.
var ErrDeferredInterrupt = errors.New("signal deferred during critical section")

// ErrNotPrimary is returned when a handler is installed from a context that
// is not marked as the primary signal-handling flow.
var ErrNotPrimary = errors.New("signal handlers can only be installed from the primary context")

// InterruptedError is the cancellation reported at guard exit.
type InterruptedError struct {
	Signal os.Signal
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted by %v during critical section", e.Signal)
}

func (e *InterruptedError) Is(target error) bool {
	return target == ErrDeferredInterrupt || target == context.Canceled
}

// GuardMisuseError reports an attempt to install a handler for, or nest a
// second guard on, a signal that is currently deferred.
type GuardMisuseError struct {
	Signal os.Signal
	Op     string
}

func (e *GuardMisuseError) Error() string {
	return fmt.Sprintf("can't %s for %v while %v is being deferred", e.Op, e.Signal, e.Signal)
}
