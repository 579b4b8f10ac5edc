package metrics_test

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/tether/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesMetrics(t *testing.T) {
	worker := "metrics_test_worker"

	metrics.EmitBuildInfo()
	metrics.SetFateSharing("parent-death-signal", true)
	metrics.RecordBind(worker, metrics.BindBound)
	metrics.RecordBind(worker, metrics.BindBound)
	metrics.AddWorkerRestarts(worker, 2)
	metrics.IncrementDeferredInterrupt("manifest_load")

	body := scrape(t)

	for _, line := range []string{
		`tether_fate_sharing_supported{mechanism="parent-death-signal"} 1`,
		fmt.Sprintf(`tether_bind_total{outcome="bound",worker="%s"} 2`, worker),
		fmt.Sprintf(`tether_worker_restarts_total{worker="%s"} 2`, worker),
		`tether_deferred_interrupts_total{section="manifest_load"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected metric line %q in body:\n%s", line, body)
		}
	}

	if !strings.Contains(body, "tether_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
	if !strings.Contains(body, "go_version=") {
		t.Fatalf("expected go_version label on build info metric:\n%s", body)
	}
}

func TestResetWorkerDropsSeries(t *testing.T) {
	worker := "metrics_reset_worker"
	metrics.RecordBind(worker, metrics.BindSkipped)
	metrics.IncrementWorkerRestart(worker)

	metrics.ResetWorker(worker)

	body := scrape(t)
	if strings.Contains(body, worker) {
		t.Fatalf("expected series for %s to be removed:\n%s", worker, body)
	}
}

func TestRecordBindIgnoresEmptyLabels(t *testing.T) {
	metrics.RecordBind("", metrics.BindFailed)
	metrics.AddWorkerRestarts("ignored_worker", 0)

	body := scrape(t)
	if strings.Contains(body, `worker=""`) || strings.Contains(body, "ignored_worker") {
		t.Fatalf("expected empty inputs to be ignored:\n%s", body)
	}
}
