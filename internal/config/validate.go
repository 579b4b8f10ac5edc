package config

import (
	"fmt"
	"strings"
)

// ApplyDefaults fills in inherited and implicit settings.
func (m *Manifest) ApplyDefaults() error {
	m.Supervisor.FateSharing = normalize(m.Supervisor.FateSharing)
	if m.Supervisor.FateSharing == "" {
		m.Supervisor.FateSharing = FateSharingAuto
	}
	if !m.Supervisor.ShutdownTimeout.IsSet() {
		m.Supervisor.ShutdownTimeout = Duration{Duration: defaultShutdownTimeout}
	}

	for name, w := range m.Workers {
		if w == nil {
			return fmt.Errorf("worker %q is null", name)
		}
		w.Runtime = normalize(w.Runtime)
		if w.Runtime == "" {
			w.Runtime = RuntimeProcess
		}
		w.FateSharing = normalize(w.FateSharing)
		if w.FateSharing == "" {
			w.FateSharing = m.Supervisor.FateSharing
		}
		if w.RestartPolicy == nil && m.Defaults.Restart != nil {
			w.RestartPolicy = m.Defaults.Restart.Clone()
		}
	}
	return nil
}

// Validate enforces manifest invariants.
func (m *Manifest) Validate() error {
	if m.Version != "" && m.Version != supportedVersion {
		return fmt.Errorf("%s: unsupported version %q (supported: %s)", fieldPath("version"), m.Version, supportedVersion)
	}
	if len(m.Workers) == 0 {
		return fmt.Errorf("%s: must define at least one worker", fieldPath("workers"))
	}
	if err := validateFateSharing(m.Supervisor.FateSharing); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("supervisor", "fateSharing"), err)
	}
	if m.Supervisor.ShutdownTimeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("supervisor", "shutdownTimeout"))
	}
	if err := validateRestartPolicy(m.Defaults.Restart); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("defaults", "restartPolicy"), err)
	}

	for _, name := range m.WorkersSorted() {
		w := m.Workers[name]
		if len(w.Command) == 0 || strings.TrimSpace(w.Command[0]) == "" {
			return fmt.Errorf("%s: must contain at least one entry", workerField(name, "command"))
		}
		switch w.Runtime {
		case RuntimeProcess, RuntimeWrapped:
		default:
			return fmt.Errorf("%s: unsupported runtime %q (supported values: %s, %s)", workerField(name, "runtime"), w.Runtime, RuntimeProcess, RuntimeWrapped)
		}
		if err := validateFateSharing(w.FateSharing); err != nil {
			return fmt.Errorf("%s: %w", workerField(name, "fateSharing"), err)
		}
		if err := validateRestartPolicy(w.RestartPolicy); err != nil {
			return fmt.Errorf("%s: %w", workerField(name, "restartPolicy"), err)
		}
	}
	return nil
}

func validateFateSharing(mode string) error {
	switch mode {
	case FateSharingOff, FateSharingAuto, FateSharingRequired:
		return nil
	}
	return fmt.Errorf("unsupported mode %q (supported values: %s, %s, %s)", mode, FateSharingOff, FateSharingAuto, FateSharingRequired)
}

func validateRestartPolicy(p *RestartPolicy) error {
	if p == nil || p.Backoff == nil {
		return nil
	}
	b := p.Backoff
	if b.Min.Duration < 0 || b.Max.Duration < 0 {
		return fmt.Errorf("backoff durations must be non-negative")
	}
	if b.Min.Duration > 0 && b.Max.Duration > 0 && b.Max.Duration < b.Min.Duration {
		return fmt.Errorf("backoff.max (%s) must not be less than backoff.min (%s)", b.Max.Duration, b.Min.Duration)
	}
	if b.Factor != 0 && b.Factor < 1 {
		return fmt.Errorf("backoff.factor must be at least 1")
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
