package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Runtime identifiers accepted in the manifest.
const (
	RuntimeProcess = "process"
	RuntimeWrapped = "wrapped"
)

// Fate-sharing modes accepted in the manifest.
const (
	FateSharingOff      = "off"
	FateSharingAuto     = "auto"
	FateSharingRequired = "required"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	supportedVersion       = "0.1"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Manifest mirrors the workers.yaml document structure.
type Manifest struct {
	Version    string                 `yaml:"version"`
	Supervisor SupervisorSpec         `yaml:"supervisor"`
	Defaults   Defaults               `yaml:"defaults"`
	Workers    map[string]*WorkerSpec `yaml:"workers"`

	// Source is the absolute path the manifest was loaded from.
	Source string `yaml:"-"`
}

// SupervisorSpec configures the supervising process itself.
type SupervisorSpec struct {
	Name            string   `yaml:"name"`
	Workdir         string   `yaml:"workdir"`
	FateSharing     string   `yaml:"fateSharing"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// Defaults captures policies inherited by workers that do not set their own.
type Defaults struct {
	Restart *RestartPolicy `yaml:"restartPolicy"`
}

// WorkerSpec describes one supervised worker process.
type WorkerSpec struct {
	Command       []string          `yaml:"command"`
	Env           map[string]string `yaml:"env"`
	EnvFromFile   string            `yaml:"envFromFile"`
	Runtime       string            `yaml:"runtime"`
	FateSharing   string            `yaml:"fateSharing"`
	RestartPolicy *RestartPolicy    `yaml:"restartPolicy"`

	ResolvedWorkdir string `yaml:"-"`
}

// RestartPolicy controls how failed workers are restarted. A negative
// MaxRetries restarts forever.
type RestartPolicy struct {
	MaxRetries int          `yaml:"maxRetries"`
	Backoff    *BackoffSpec `yaml:"backoff"`
}

// BackoffSpec describes exponential backoff configuration.
type BackoffSpec struct {
	Min    Duration `yaml:"min"`
	Max    Duration `yaml:"max"`
	Factor float64  `yaml:"factor"`
}

// Clone creates a deep copy of the restart policy.
func (r *RestartPolicy) Clone() *RestartPolicy {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Backoff != nil {
		backoff := *r.Backoff
		cp.Backoff = &backoff
	}
	return &cp
}

// Clone creates a deep copy of the worker.
func (w *WorkerSpec) Clone() *WorkerSpec {
	if w == nil {
		return nil
	}
	cp := *w
	if len(w.Command) > 0 {
		cp.Command = append([]string(nil), w.Command...)
	}
	if len(w.Env) > 0 {
		cp.Env = make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			cp.Env[k] = v
		}
	}
	cp.RestartPolicy = w.RestartPolicy.Clone()
	return &cp
}

// WorkersSorted returns worker names sorted alphabetically.
func (m *Manifest) WorkersSorted() []string {
	out := make([]string, 0, len(m.Workers))
	for name := range m.Workers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func workerField(worker string, parts ...string) string {
	pathParts := append([]string{"workers", worker}, parts...)
	return fieldPath(pathParts...)
}
