package cli

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"testing"

	"github.com/Paintersrp/tether/internal/signals"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain", err: errors.New("boom"), want: 1},
		{name: "exitError", err: &exitError{code: 127}, want: 127},
		{name: "wrappedExitError", err: fmt.Errorf("run: %w", &exitError{code: 3}), want: 3},
		{name: "deferredInterrupt", err: &signals.InterruptedError{Signal: syscall.SIGINT}, want: 130},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode(%v)=%d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestReportErrorSkipsSilentExitErrors(t *testing.T) {
	var buf bytes.Buffer
	if code := reportError(&buf, &exitError{code: 2}); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	if code := reportError(&buf, errors.New("manifest missing")); code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "manifest missing") {
		t.Fatalf("expected error printed, got %q", buf.String())
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello", "worker", "api")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["worker"] != "api" {
		t.Fatalf("unexpected record: %v", record)
	}

	buf.Reset()
	logger, err = newLogger(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}

func TestNewLoggerRejectsInvalidInput(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", "json"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := newLogger(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestResolveLogFormatDefaultsToJSONForBuffers(t *testing.T) {
	if got := resolveLogFormat(&bytes.Buffer{}, ""); got != "json" {
		t.Fatalf("expected json for non-terminal writer, got %q", got)
	}
	if got := resolveLogFormat(&bytes.Buffer{}, " TEXT "); got != "text" {
		t.Fatalf("expected explicit format to win, got %q", got)
	}
}

func TestRootCommandReadsLogSettingsFromEnv(t *testing.T) {
	t.Setenv(envLogLevel, "error")
	t.Setenv(envLogFormat, "json")

	cmd, cctx := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"detect"})
	if err := cmd.ExecuteContext(signals.Primary(stdcontext.Background())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cctx.logger == nil {
		t.Fatalf("expected logger to be configured")
	}
	if cctx.logger.Enabled(stdcontext.Background(), slog.LevelDebug) {
		t.Fatalf("expected debug to be disabled at error level")
	}
	if *cctx.manifestFile != defaultManifest {
		t.Fatalf("expected default manifest %q, got %q", defaultManifest, *cctx.manifestFile)
	}
}
