package fateshare

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the cached outcome of capability detection.
type State int32

const (
	StateUnknown State = iota
	StateUnsupported
	StateSupported
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateSupported:
		return "supported"
	default:
		return "unknown"
	}
}

// Mechanism identifies the kernel primitive backing fate-sharing.
type Mechanism int

const (
	MechanismNone Mechanism = iota
	// MechanismParentDeathSignal is prctl(PR_SET_PDEATHSIG), applied by the child.
	MechanismParentDeathSignal
	// MechanismJobObject is a kill-on-close job object, applied by the parent.
	MechanismJobObject
)

func (m Mechanism) String() string {
	switch m {
	case MechanismParentDeathSignal:
		return "parent-death-signal"
	case MechanismJobObject:
		return "job-object"
	default:
		return "none"
	}
}

// Handle is an OS handle. Only meaningful on Windows.
type Handle uintptr

// Capability describes what a successful probe found. The job handle is owned
// by the Detector that produced it and lives until the process exits.
type Capability struct {
	Mechanism Mechanism
	job       Handle
}

// Probe inspects the host once. A non-nil error or MechanismNone both mean
// fate-sharing is unavailable.
type Probe func() (Capability, error)

// Detector answers whether this process can request fate-sharing. The probe
// runs at most once; afterwards Detect is a single atomic load.
type Detector struct {
	probe Probe

	mu         sync.Mutex
	logger     *slog.Logger
	capability Capability

	state  atomic.Int32
	probes atomic.Int32
}

// NewDetector returns a detector backed by probe. A nil logger falls back to
// slog.Default at probe time.
func NewDetector(probe Probe, logger *slog.Logger) *Detector {
	if probe == nil {
		probe = func() (Capability, error) { return Capability{}, nil }
	}
	return &Detector{probe: probe, logger: logger}
}

// SetLogger replaces the logger that receives probe warnings. It has no effect
// once detection has happened.
func (d *Detector) SetLogger(logger *slog.Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Detect reports whether fate-sharing is supported, probing on first use.
// Concurrent first calls serialize on the detector's mutex and observe a
// single probe result.
func (d *Detector) Detect() bool {
	if s := State(d.state.Load()); s != StateUnknown {
		return s == StateSupported
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s := State(d.state.Load()); s != StateUnknown {
		return s == StateSupported
	}

	d.probes.Add(1)
	capability, err := d.probe()
	if err != nil || capability.Mechanism == MechanismNone {
		if err != nil {
			logger := d.logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("fate-sharing probe failed; child processes will not be bound to this process", "err", err)
		}
		d.state.Store(int32(StateUnsupported))
		return false
	}

	// capability is published by the state store below; readers load state first.
	d.capability = capability
	d.state.Store(int32(StateSupported))
	return true
}

// State returns the cached state without probing.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// Mechanism detects on first use and returns the available primitive.
func (d *Detector) Mechanism() Mechanism {
	if !d.Detect() {
		return MechanismNone
	}
	return d.capability.Mechanism
}

// Probes returns how many times the underlying probe has run.
func (d *Detector) Probes() int {
	return int(d.probes.Load())
}

// require returns the detected capability or panics when it does not provide want.
func (d *Detector) require(op string, want Mechanism) Capability {
	have := d.Mechanism()
	if have != want {
		panic(&ContractViolation{Op: op, Want: want, Have: have})
	}
	return d.capability
}

var defaultDetector = NewDetector(platformProbe, nil)

// Default returns the process-wide detector used by the package-level functions.
func Default() *Detector {
	return defaultDetector
}

// Detect reports whether this process can bind child lifetimes to its own.
func Detect() bool {
	return defaultDetector.Detect()
}
