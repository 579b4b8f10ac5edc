package cliutil

import (
	stdcontext "context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Paintersrp/tether/internal/engine"
	"github.com/Paintersrp/tether/internal/runtime"
)

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn":
		return "warn"
	case "info":
		return "info"
	default:
		return ""
	}
}

// EventLevel resolves the slog level for an engine event. Worker output without
// an explicit level is classified by the first level token it contains.
func EventLevel(event engine.Event) slog.Level {
	level := event.Level
	if level == "" {
		level = inferLogLevel(event.Message)
	}
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EventAttrs converts an engine event into slog attributes.
func EventAttrs(event engine.Event) []slog.Attr {
	source := event.Source
	if source == "" {
		source = runtime.LogSourceSystem
	}
	attrs := []slog.Attr{
		slog.String("worker", event.Worker),
		slog.String("event", string(event.Type)),
		slog.String("source", source),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", event.Attempt))
	}
	if event.Type == engine.EventTypeStarted {
		attrs = append(attrs, slog.Int("pid", event.PID), slog.Bool("bound", event.Bound))
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}
	return attrs
}

// LogEvent writes event to logger after passing its message through r.
func LogEvent(ctx stdcontext.Context, logger *slog.Logger, r *Redactor, event engine.Event) {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	message := event.Message
	if message == "" {
		message = string(event.Type)
	}
	if r == nil {
		r = defaultRedactor
	}
	logger.LogAttrs(ctx, EventLevel(event), r.Redact(message), EventAttrs(event)...)
}
