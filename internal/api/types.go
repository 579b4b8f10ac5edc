package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/Paintersrp/tether/internal/engine"
)

var (
	ErrUnknownWorker = errors.New("unknown worker")
	ErrNotRunning    = errors.New("supervisor not running")
)

// FateSharingReport describes the host capability detected at startup.
type FateSharingReport struct {
	Supported bool   `json:"supported"`
	Mechanism string `json:"mechanism"`
}

// WorkerTransition is one lifecycle change of a worker.
type WorkerTransition struct {
	Timestamp time.Time        `json:"timestamp"`
	Type      engine.EventType `json:"type"`
	Reason    string           `json:"reason"`
	Message   string           `json:"message"`
}

// WorkerReport describes the runtime state for a single worker.
type WorkerReport struct {
	Name       string             `json:"name"`
	State      engine.EventType   `json:"state"`
	Running    bool               `json:"running"`
	PID        int                `json:"pid"`
	Bound      bool               `json:"bound"`
	Restarts   int                `json:"restarts"`
	Message    string             `json:"message"`
	FirstSeen  time.Time          `json:"first_seen"`
	LastEvent  time.Time          `json:"last_event"`
	LastReason string             `json:"last_reason"`
	History    []WorkerTransition `json:"history"`
}

// StatusReport aggregates supervisor-wide status information.
type StatusReport struct {
	Supervisor  string                  `json:"supervisor"`
	Manifest    string                  `json:"manifest"`
	GeneratedAt time.Time               `json:"generated_at"`
	FateSharing FateSharingReport       `json:"fate_sharing"`
	Workers     map[string]WorkerReport `json:"workers"`
}

// Controller exposes supervisor state to control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Worker(stdcontext.Context, string) (*WorkerReport, error)
}
