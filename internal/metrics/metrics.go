package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Bind outcomes recorded by RecordBind.
const (
	BindBound       = "bound"
	BindSkipped     = "skipped"
	BindUnsupported = "unsupported"
	BindFailed      = "failed"
	// BindDelegated means the exec wrapper binds the worker itself.
	BindDelegated   = "delegated"
)

var (
	registry = prometheus.NewRegistry()

	fateSharingSupported = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tether",
		Name:      "fate_sharing_supported",
		Help:      "Whether the host supports fate-sharing (1=supported, 0=unsupported), by mechanism.",
	}, []string{"mechanism"})

	bindTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "bind_total",
		Help:      "Fate-sharing bind attempts per worker and outcome.",
	}, []string{"worker", "outcome"})

	deferredInterrupts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "deferred_interrupts_total",
		Help:      "Signals that arrived during a critical section and were reported afterwards.",
	}, []string{"section"})

	workerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tether",
		Name:      "worker_restarts_total",
		Help:      "Total number of restarts initiated for each worker.",
	}, []string{"worker"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tether",
		Name:      "build_info",
		Help:      "Build metadata for the running tether binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(fateSharingSupported, bindTotal, deferredInterrupts, workerRestarts, buildInfo)
}

// Registry returns the Prometheus registry containing all tether metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetFateSharing records the detected capability.
func SetFateSharing(mechanism string, supported bool) {
	if mechanism == "" {
		mechanism = "none"
	}
	value := 0.0
	if supported {
		value = 1.0
	}
	fateSharingSupported.WithLabelValues(mechanism).Set(value)
}

// RecordBind counts one bind attempt for a worker.
func RecordBind(worker, outcome string) {
	if worker == "" || outcome == "" {
		return
	}
	bindTotal.WithLabelValues(worker, outcome).Inc()
}

// IncrementDeferredInterrupt counts a signal reported at the end of a guarded
// section.
func IncrementDeferredInterrupt(section string) {
	if section == "" {
		section = "unknown"
	}
	deferredInterrupts.WithLabelValues(section).Inc()
}

// AddWorkerRestarts increments the restart counter for a worker.
func AddWorkerRestarts(worker string, n int) {
	if worker == "" || n <= 0 {
		return
	}
	workerRestarts.WithLabelValues(worker).Add(float64(n))
}

// IncrementWorkerRestart increments the restart counter by one for a worker.
func IncrementWorkerRestart(worker string) {
	AddWorkerRestarts(worker, 1)
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetWorker clears the per-worker series.
func ResetWorker(worker string) {
	if worker == "" {
		return
	}
	workerRestarts.DeleteLabelValues(worker)
	bindTotal.DeletePartialMatch(prometheus.Labels{"worker": worker})
}
