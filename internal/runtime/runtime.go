package runtime

import (
	"context"
	"time"
)

const (
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
	LogSourceSystem = "supervisor"
)

// LogEntry is one line of worker output.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Source    string
	Level     string
}

// StartSpec describes a worker to launch.
type StartSpec struct {
	Name    string
	Command []string
	Env     map[string]string
	Workdir string

	// FateSharing is one of the config fate-sharing modes: off, auto or
	// required. An empty value behaves like auto.
	FateSharing string
}

// Handle represents a single running worker managed by a runtime adapter.
type Handle interface {
	// Wait blocks until the worker exits or ctx is cancelled. It returns
	// the exit error, nil for a clean exit.
	Wait(ctx context.Context) error

	// Stop terminates the worker gracefully, escalating to a kill once the
	// grace period or ctx runs out. Implementations must be idempotent.
	Stop(ctx context.Context) error

	// Kill terminates the worker immediately.
	Kill(ctx context.Context) error

	// Logs returns the worker's output. The channel is closed once the
	// worker's output streams end. A nil channel means no log streaming.
	Logs(ctx context.Context) (<-chan LogEntry, error)

	// PID is the operating-system process id of the worker.
	PID() int

	// Bound reports whether the worker was bound to the supervisor's
	// lifetime. It is false when an exec wrapper applies the binding itself.
	Bound() bool
}

// Runtime describes a backend capable of launching workers.
type Runtime interface {
	// Start launches the worker and returns a handle to it. Failures to
	// honour a required fate-sharing mode are returned as errors and leave
	// no process behind.
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}

// Registry maps runtime identifiers to their concrete implementations.
type Registry map[string]Runtime

// Clone returns a shallow copy of the registry, allowing callers to avoid
// accidental mutation of shared maps.
func (r Registry) Clone() Registry {
	dup := make(Registry, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}
