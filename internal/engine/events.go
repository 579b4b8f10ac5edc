package engine

import (
	"time"

	"github.com/Paintersrp/tether/internal/runtime"
)

// EventType captures high level lifecycle notifications emitted by
// supervisors.
type EventType string

const (
	EventTypeStarting EventType = "starting"
	EventTypeStarted  EventType = "started"
	EventTypeStopping EventType = "stopping"
	EventTypeStopped  EventType = "stopped"
	EventTypeExited   EventType = "exited"
	EventTypeLog      EventType = "log"
	EventTypeError    EventType = "error"
	EventTypeCrashed  EventType = "crashed"
	EventTypeFailed   EventType = "failed"
)

// Event represents a single lifecycle or log notification.
type Event struct {
	Timestamp time.Time
	Worker    string
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
	Attempt   int
	Reason    string

	// PID and Bound describe the instance on started events.
	PID   int
	Bound bool
}

const (
	ReasonInitialStart   = "initial_start"
	ReasonRestart        = "restart"
	ReasonStartFailure   = "start_failure"
	ReasonInstanceCrash  = "instance_crash"
	ReasonRetriesExhaust = "retries_exhausted"
	ReasonUnsupported    = "fate_sharing_unsupported"
	ReasonCleanExit      = "clean_exit"
	ReasonLogStreamError = "log_stream_error"
	ReasonSupervisorStop = "supervisor_stop"
	ReasonStopFailed     = "stop_failed"
	ReasonShutdown       = "shutdown"
)

func sendEvent(events chan<- Event, worker string, t EventType, message string, attempt int, reason string, err error) {
	if events == nil {
		return
	}
	level := "info"
	switch t {
	case EventTypeCrashed, EventTypeError:
		level = "warn"
	case EventTypeFailed:
		level = "error"
	}
	events <- Event{
		Timestamp: time.Now(),
		Worker:    worker,
		Type:      t,
		Message:   message,
		Level:     level,
		Source:    runtime.LogSourceSystem,
		Err:       err,
		Attempt:   attempt,
		Reason:    reason,
	}
}
