//go:build !windows

package cli

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/Paintersrp/tether/internal/api"
	apihttp "github.com/Paintersrp/tether/internal/api/http"
	"github.com/Paintersrp/tether/internal/signals"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunSupervisesUntilShutdownSignal(t *testing.T) {
	dir := t.TempDir()
	manifest := workersManifest(
		`version: "0.1"`,
		"supervisor:",
		"  name: e2e",
		"  shutdownTimeout: 2s",
		"workers:",
		"  sleeper:",
		fmt.Sprintf("    command: [%q]", os.Args[0]),
		"    env:",
		fmt.Sprintf("      %s: sleep", helperEnv),
		"      SERVICE_TOKEN: e2e-secret-token",
		"    fateSharing: auto",
	)
	path := filepath.Join(dir, "workers.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	prev := newAPIServer
	newAPIServer = func(cfg apihttp.Config) (*apihttp.Server, error) {
		cfg.Listener = ln
		return apihttp.NewServer(cfg)
	}
	t.Cleanup(func() { newAPIServer = prev })

	logs := &syncBuffer{}
	c := &context{
		manifestFile: &path,
		logger:       slog.New(slog.NewJSONHandler(logs, nil)),
	}
	ctx := signals.Primary(stdcontext.Background())

	done := make(chan error, 1)
	go func() {
		done <- runWorkers(ctx, c, runOptions{metricsAddr: ln.Addr().String()})
	}()

	url := "http://" + ln.Addr().String() + "/api/v1/workers/sleeper"
	deadline := time.Now().Add(10 * time.Second)
	var report api.WorkerReport
	for {
		if time.Now().After(deadline) {
			t.Fatalf("worker never reported running; logs:\n%s", logs.String())
		}
		if ok := fetchReport(url, &report); ok && report.Running && signals.Installed(signals.ShutdownSignal()) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if report.PID <= 0 {
		t.Fatalf("expected worker pid, got %+v", report)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v\nlogs:\n%s", err, logs.String())
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after SIGTERM; logs:\n%s", logs.String())
	}

	if err := syscall.Kill(report.PID, 0); err == nil {
		t.Fatalf("worker %d still alive after shutdown", report.PID)
	}
	if signals.Installed(signals.ShutdownSignal()) {
		t.Fatalf("shutdown handler should be removed after run")
	}
	out := logs.String()
	if !strings.Contains(out, "worker ready") {
		t.Fatalf("expected worker output in logs:\n%s", out)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("expected lock file next to manifest: %v", err)
	}
}

func TestRunRejectsSecondSupervisor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workers.yaml")
	manifest := workersManifest(
		`version: "0.1"`,
		"workers:",
		"  api:",
		`    command: ["true"]`,
	)
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	held, err := acquireManifestLock(stdcontext.Background(), defaultLockPath(path))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer held.Unlock()

	c := &context{manifestFile: &path}
	err = runWorkers(signals.Primary(stdcontext.Background()), c, runOptions{})
	if err == nil || !strings.Contains(err.Error(), "another supervisor is running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func fetchReport(url string, out *api.WorkerReport) bool {
	resp, err := http.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}
