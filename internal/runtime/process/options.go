package process

import (
	"log/slog"
	"time"

	"github.com/Paintersrp/tether/internal/fateshare"
)

// EnvFateSharing carries the effective fate-sharing mode to a wrapped child.
const EnvFateSharing = "TETHER_FATESHARE"

const (
	defaultGracePeriod = 2 * time.Second
	defaultWaitDelay   = time.Second
	logBuffer          = 64
)

// Option customises a process runtime.
type Option func(*runtimeImpl)

// WithDetector overrides the capability detector. Defaults to
// fateshare.Default().
func WithDetector(d *fateshare.Detector) Option {
	return func(r *runtimeImpl) {
		if d != nil {
			r.detector = d
		}
	}
}

// WithLogger sets the logger used for fate-sharing warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runtimeImpl) {
		r.logger = logger
	}
}

// WithGracePeriod sets how long Stop waits after the graceful signal before
// killing the worker.
func WithGracePeriod(d time.Duration) Option {
	return func(r *runtimeImpl) {
		if d > 0 {
			r.grace = d
		}
	}
}
