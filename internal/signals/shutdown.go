package signals

import (
	"context"
	"os"
)

// CancelSignal is the interrupt deferred around critical sections and used
// for cooperative cancellation.
var CancelSignal os.Signal = os.Interrupt

// ShutdownSignal returns the signal a process manager sends to request a
// graceful stop on this platform.
func ShutdownSignal() os.Signal {
	return shutdownSignal
}

// SetShutdownHandler installs h for the platform's graceful-shutdown signal on
// the default dispatcher.
func SetShutdownHandler(ctx context.Context, h Handler) error {
	return defaultDispatcher.Handle(ctx, ShutdownSignal(), h)
}
