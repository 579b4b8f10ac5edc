package config

import (
	"strings"
	"testing"
	"time"
)

func validManifest() *Manifest {
	return &Manifest{
		Workers: map[string]*WorkerSpec{
			"api": {Command: []string{"./api"}},
		},
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(m *Manifest)
		want   string
	}{
		{
			name:   "unsupported version",
			mutate: func(m *Manifest) { m.Version = "2" },
			want:   "version",
		},
		{
			name:   "empty command",
			mutate: func(m *Manifest) { m.Workers["api"].Command = []string{" "} },
			want:   "workers.api.command",
		},
		{
			name:   "unknown runtime",
			mutate: func(m *Manifest) { m.Workers["api"].Runtime = "docker" },
			want:   "workers.api.runtime",
		},
		{
			name:   "worker fate sharing",
			mutate: func(m *Manifest) { m.Workers["api"].FateSharing = "maybe" },
			want:   "workers.api.fateSharing",
		},
		{
			name: "backoff inverted",
			mutate: func(m *Manifest) {
				m.Workers["api"].RestartPolicy = &RestartPolicy{Backoff: &BackoffSpec{
					Min: Duration{Duration: time.Second},
					Max: Duration{Duration: time.Millisecond},
				}}
			},
			want: "workers.api.restartPolicy",
		},
		{
			name: "backoff factor",
			mutate: func(m *Manifest) {
				m.Defaults.Restart = &RestartPolicy{Backoff: &BackoffSpec{Factor: 0.5}}
			},
			want: "defaults.restartPolicy",
		},
		{
			name:   "negative shutdown timeout",
			mutate: func(m *Manifest) { m.Supervisor.ShutdownTimeout = Duration{Duration: -time.Second} },
			want:   "supervisor.shutdownTimeout",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validManifest()
			tc.mutate(m)
			if err := m.ApplyDefaults(); err != nil {
				t.Fatalf("apply defaults: %v", err)
			}
			err := m.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyDefaultsNormalizesModes(t *testing.T) {
	m := validManifest()
	m.Supervisor.FateSharing = " Required "
	m.Workers["api"].Runtime = "WRAPPED"
	if err := m.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	w := m.Workers["api"]
	if w.FateSharing != FateSharingRequired {
		t.Fatalf("expected worker to inherit %q, got %q", FateSharingRequired, w.FateSharing)
	}
	if w.Runtime != RuntimeWrapped {
		t.Fatalf("expected runtime %q, got %q", RuntimeWrapped, w.Runtime)
	}
}

func TestApplyDefaultsRejectsNullWorker(t *testing.T) {
	m := validManifest()
	m.Workers["ghost"] = nil
	if err := m.ApplyDefaults(); err == nil {
		t.Fatalf("expected error for null worker")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("")); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !d.IsSet() || d.Duration != 0 {
		t.Fatalf("expected explicit zero duration, got %+v", d)
	}
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWorkerCloneIsDeep(t *testing.T) {
	w := &WorkerSpec{
		Command:       []string{"a", "b"},
		Env:           map[string]string{"K": "V"},
		RestartPolicy: &RestartPolicy{Backoff: &BackoffSpec{Factor: 2}},
	}
	cp := w.Clone()
	cp.Command[0] = "x"
	cp.Env["K"] = "changed"
	cp.RestartPolicy.Backoff.Factor = 3
	if w.Command[0] != "a" || w.Env["K"] != "V" || w.RestartPolicy.Backoff.Factor != 2 {
		t.Fatalf("clone shares state with original: %+v", w)
	}
}
