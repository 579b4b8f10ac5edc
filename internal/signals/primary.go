package signals

import "context"

type primaryKey struct{}

// Primary marks ctx as the process's primary signal-handling flow. The CLI
// root marks the context it hands to commands.
func Primary(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryKey{}, true)
}

// Secondary clears the primary mark. Goroutines that do not own signal
// handling, such as per-worker supervisors, should run under a secondary context.
func Secondary(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryKey{}, false)
}

// IsPrimary reports whether ctx belongs to the primary flow.
func IsPrimary(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(primaryKey{}).(bool)
	return v
}
