package cli

import (
	stdcontext "context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Paintersrp/tether/internal/api"
	"github.com/Paintersrp/tether/internal/cliutil"
	"github.com/Paintersrp/tether/internal/engine"
)

const defaultHistorySize = 16

// workerStatus captures runtime state for a worker observed via events.
type workerStatus struct {
	name       string
	firstSeen  time.Time
	lastEvent  time.Time
	state      engine.EventType
	running    bool
	pid        int
	bound      bool
	restarts   int
	message    string
	lastReason string
	history    []api.WorkerTransition
}

// statusTracker maintains in-memory status for workers based on engine events
// and serves it to the status API.
type statusTracker struct {
	mu          sync.RWMutex
	supervisor  string
	manifest    string
	fateSharing api.FateSharingReport
	workers     map[string]*workerStatus
	historySize int
	redactor    *cliutil.Redactor
	closed      bool
	now         func() time.Time
}

type statusTrackerOption func(*statusTracker)

func withHistorySize(n int) statusTrackerOption {
	return func(t *statusTracker) {
		if n > 0 {
			t.historySize = n
		}
	}
}

func withRedactor(r *cliutil.Redactor) statusTrackerOption {
	return func(t *statusTracker) {
		if r != nil {
			t.redactor = r
		}
	}
}

func newStatusTracker(supervisor, manifest string, fs api.FateSharingReport, workers []string, opts ...statusTrackerOption) *statusTracker {
	t := &statusTracker{
		supervisor:  supervisor,
		manifest:    manifest,
		fateSharing: fs,
		workers:     make(map[string]*workerStatus, len(workers)),
		historySize: defaultHistorySize,
		redactor:    cliutil.NewRedactor(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, name := range workers {
		t.workers[name] = &workerStatus{name: name}
	}
	return t
}

// Apply updates the tracker based on the supplied event.
func (t *statusTracker) Apply(evt engine.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.workers[evt.Worker]
	if state == nil {
		state = &workerStatus{name: evt.Worker}
		t.workers[evt.Worker] = state
	}
	if state.firstSeen.IsZero() {
		state.firstSeen = evt.Timestamp
	}
	if evt.Timestamp.After(state.lastEvent) {
		state.lastEvent = evt.Timestamp
	}
	if evt.Type == engine.EventTypeLog {
		return
	}

	state.state = evt.Type
	state.lastReason = evt.Reason
	switch evt.Type {
	case engine.EventTypeStarted:
		state.running = true
		state.pid = evt.PID
		state.bound = evt.Bound
		if evt.Reason == engine.ReasonRestart {
			state.restarts++
		}
	case engine.EventTypeStopped, engine.EventTypeExited, engine.EventTypeCrashed, engine.EventTypeFailed:
		state.running = false
		state.pid = 0
		state.bound = false
	}

	message := evt.Message
	if evt.Err != nil {
		if message == "" {
			message = evt.Err.Error()
		} else {
			message = fmt.Sprintf("%s: %v", message, evt.Err)
		}
	}
	state.message = t.redactor.Redact(message)

	state.history = append(state.history, api.WorkerTransition{
		Timestamp: evt.Timestamp,
		Type:      evt.Type,
		Reason:    evt.Reason,
		Message:   state.message,
	})
	if len(state.history) > t.historySize {
		state.history = state.history[len(state.history)-t.historySize:]
	}
}

// Close marks the supervisor as shutting down; further status requests fail.
func (t *statusTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *statusTracker) report(state *workerStatus) api.WorkerReport {
	return api.WorkerReport{
		Name:       state.name,
		State:      state.state,
		Running:    state.running,
		PID:        state.pid,
		Bound:      state.bound,
		Restarts:   state.restarts,
		Message:    state.message,
		FirstSeen:  state.firstSeen,
		LastEvent:  state.lastEvent,
		LastReason: state.lastReason,
		History:    append([]api.WorkerTransition(nil), state.history...),
	}
}

// Status implements api.Controller.
func (t *statusTracker) Status(stdcontext.Context) (*api.StatusReport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, api.ErrNotRunning
	}

	out := &api.StatusReport{
		Supervisor:  t.supervisor,
		Manifest:    t.manifest,
		GeneratedAt: t.now(),
		FateSharing: t.fateSharing,
		Workers:     make(map[string]api.WorkerReport, len(t.workers)),
	}
	for name, state := range t.workers {
		out.Workers[name] = t.report(state)
	}
	return out, nil
}

// Worker implements api.Controller.
func (t *statusTracker) Worker(_ stdcontext.Context, name string) (*api.WorkerReport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, api.ErrNotRunning
	}
	state, ok := t.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownWorker, name)
	}
	report := t.report(state)
	return &report, nil
}

// Names returns the list of known workers sorted alphabetically. Useful for tests.
func (t *statusTracker) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.workers))
	for name := range t.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
