package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/runtime"
	"github.com/Paintersrp/tether/internal/signals"
)

func workerWithPolicy(maxRetries int, min, max time.Duration) *config.WorkerSpec {
	return &config.WorkerSpec{
		Command:     []string{"./worker"},
		FateSharing: config.FateSharingAuto,
		RestartPolicy: &config.RestartPolicy{
			MaxRetries: maxRetries,
			Backoff: &config.BackoffSpec{
				Min:    config.Duration{Duration: min},
				Max:    config.Duration{Duration: max},
				Factor: 2,
			},
		},
	}
}

func instantSupervisor(name string, w *config.WorkerSpec, rt runtime.Runtime, events chan<- Event) *supervisor {
	sup := newSupervisor(name, w, rt, events)
	sup.jitter = func(d time.Duration) time.Duration { return d }
	sup.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return sup
}

func TestSupervisorBackoffJitter(t *testing.T) {
	w := workerWithPolicy(3, 50*time.Millisecond, 500*time.Millisecond)
	rt := &fakeRuntime{instances: []*fakeInstance{
		exitsWith(errors.New("not ready")),
		exitsWith(errors.New("still failing")),
		exitsWith(errors.New("boom")),
		exitsWith(errors.New("boom again")),
	}}

	var delays []time.Duration
	sup := newSupervisor("db", w, rt, make(chan Event, 64))
	sup.jitter = func(d time.Duration) time.Duration { return d }
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	sup.Start(context.Background())
	waitDone(t, sup)

	expected := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}
	if diff := cmp.Diff(expected, delays); diff != "" {
		t.Fatalf("backoff delays mismatch (-want +got):\n%s", diff)
	}
	if err := sup.getRunErr(); err == nil || err.Error() != "boom again" {
		t.Fatalf("expected final crash error, got %v", err)
	}
}

func TestSupervisorBackoffCapsAtMax(t *testing.T) {
	w := workerWithPolicy(4, 100*time.Millisecond, 250*time.Millisecond)
	var instances []*fakeInstance
	for i := 0; i < 5; i++ {
		instances = append(instances, exitsWith(fmt.Errorf("crash %d", i)))
	}
	rt := &fakeRuntime{instances: instances}

	var delays []time.Duration
	sup := newSupervisor("capped", w, rt, make(chan Event, 64))
	sup.jitter = func(d time.Duration) time.Duration { return d }
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	sup.Start(context.Background())
	waitDone(t, sup)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
		250 * time.Millisecond,
	}
	if diff := cmp.Diff(expected, delays); diff != "" {
		t.Fatalf("backoff delays mismatch (-want +got):\n%s", diff)
	}
}

func TestSupervisorMaxRetriesEmitsCrashedThenFailed(t *testing.T) {
	w := workerWithPolicy(1, 10*time.Millisecond, 20*time.Millisecond)
	rt := &fakeRuntime{instances: []*fakeInstance{
		exitsWith(errors.New("startup failure")),
		exitsWith(errors.New("still broken")),
	}}
	events := make(chan Event, 64)
	sup := instantSupervisor("api", w, rt, events)

	sup.Start(context.Background())
	waitDone(t, sup)

	got := eventTypes(drain(events))
	want := []EventType{
		EventTypeStarting, EventTypeStarted, EventTypeCrashed,
		EventTypeStarting, EventTypeStarted, EventTypeCrashed, EventTypeFailed,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if rt.starts() != 2 {
		t.Fatalf("expected 2 start attempts, got %d", rt.starts())
	}
}

func TestSupervisorCleanExitDoesNotRestart(t *testing.T) {
	rt := &fakeRuntime{instances: []*fakeInstance{exitsWith(nil), running()}}
	events := make(chan Event, 64)
	sup := instantSupervisor("oneshot", workerWithPolicy(-1, time.Millisecond, time.Millisecond), rt, events)

	sup.Start(context.Background())
	waitDone(t, sup)

	if rt.starts() != 1 {
		t.Fatalf("expected a single start, got %d", rt.starts())
	}
	if err := sup.getRunErr(); err != nil {
		t.Fatalf("expected no run error, got %v", err)
	}
	got := eventTypes(drain(events))
	if got[len(got)-1] != EventTypeExited {
		t.Fatalf("expected exited as final event, got %v", got)
	}
}

func TestSupervisorUnsupportedFailsWithoutRetry(t *testing.T) {
	unsupported := fmt.Errorf("worker strict requires fate-sharing: %w", fateshare.ErrUnsupported)
	rt := &fakeRuntime{instances: []*fakeInstance{failsToStart(unsupported), running()}}
	events := make(chan Event, 64)
	sup := instantSupervisor("strict", workerWithPolicy(-1, time.Millisecond, time.Millisecond), rt, events)

	sup.Start(context.Background())
	err := sup.AwaitStarted(context.Background())
	if !errors.Is(err, fateshare.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported from AwaitStarted, got %v", err)
	}
	waitDone(t, sup)
	if rt.starts() != 1 {
		t.Fatalf("expected no retries for unsupported start, got %d starts", rt.starts())
	}

	var failed *Event
	for _, evt := range drain(events) {
		if evt.Type == EventTypeFailed {
			evt := evt
			failed = &evt
		}
	}
	if failed == nil || failed.Reason != ReasonUnsupported {
		t.Fatalf("expected failed event with reason %q, got %+v", ReasonUnsupported, failed)
	}
}

func TestSupervisorRetriesStartFailure(t *testing.T) {
	inst := running()
	inst.bound = true
	rt := &fakeRuntime{instances: []*fakeInstance{failsToStart(errors.New("exec format error")), inst}}
	events := make(chan Event, 64)
	sup := instantSupervisor("flaky", workerWithPolicy(2, time.Millisecond, time.Millisecond), rt, events)

	sup.Start(context.Background())
	if err := sup.AwaitStarted(context.Background()); err != nil {
		t.Fatalf("expected eventual start, got %v", err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !inst.stopped.Load() {
		t.Fatalf("expected running instance to be stopped")
	}

	var started *Event
	for _, evt := range drain(events) {
		if evt.Type == EventTypeStarted {
			evt := evt
			started = &evt
		}
	}
	if started == nil {
		t.Fatalf("expected started event")
	}
	if started.PID != 4242 || !started.Bound || started.Attempt != 1 || started.Reason != ReasonRestart {
		t.Fatalf("unexpected started event: %+v", started)
	}
}

func TestSupervisorStopEmitsStopped(t *testing.T) {
	inst := running()
	rt := &fakeRuntime{instances: []*fakeInstance{inst}}
	events := make(chan Event, 64)
	sup := instantSupervisor("web", workerWithPolicy(3, time.Millisecond, time.Millisecond), rt, events)

	sup.Start(context.Background())
	if err := sup.AwaitStarted(context.Background()); err != nil {
		t.Fatalf("await started: %v", err)
	}
	if sup.Current() != inst {
		t.Fatalf("expected current instance to be tracked")
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sup.Current() != nil {
		t.Fatalf("expected current instance cleared after stop")
	}

	got := eventTypes(drain(events))
	want := []EventType{EventTypeStarting, EventTypeStarted, EventTypeStopping, EventTypeStopped}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if rt.starts() != 1 {
		t.Fatalf("expected no restart after stop, got %d starts", rt.starts())
	}
}

func TestSupervisorForwardsLogs(t *testing.T) {
	inst := running()
	inst.logsCh = make(chan runtime.LogEntry, 2)
	inst.logsCh <- runtime.LogEntry{Message: "hello", Source: runtime.LogSourceStdout}
	inst.logsCh <- runtime.LogEntry{Message: "careful", Source: runtime.LogSourceStderr}
	close(inst.logsCh)
	inst.exit <- nil

	rt := &fakeRuntime{instances: []*fakeInstance{inst}}
	events := make(chan Event, 64)
	sup := instantSupervisor("chatty", workerWithPolicy(0, time.Millisecond, time.Millisecond), rt, events)
	sup.Start(context.Background())
	waitDone(t, sup)

	var lines []string
	for _, evt := range drain(events) {
		if evt.Type != EventTypeLog {
			continue
		}
		if evt.Worker != "chatty" {
			t.Fatalf("expected worker name on log event, got %q", evt.Worker)
		}
		lines = append(lines, evt.Level+":"+evt.Message)
	}
	if got := strings.Join(lines, ","); got != "info:hello,warn:careful" {
		t.Fatalf("unexpected log events: %s", got)
	}
}

func TestSupervisorPassesSecondaryContextAndSpec(t *testing.T) {
	inst := running()
	rt := &fakeRuntime{instances: []*fakeInstance{inst}}
	w := workerWithPolicy(0, time.Millisecond, time.Millisecond)
	w.Env = map[string]string{"K": "V"}
	w.ResolvedWorkdir = "/srv"
	w.FateSharing = config.FateSharingRequired
	sup := instantSupervisor("ctx", w, rt, make(chan Event, 64))

	sup.Start(signals.Primary(context.Background()))
	if err := sup.AwaitStarted(context.Background()); err != nil {
		t.Fatalf("await started: %v", err)
	}
	defer sup.Stop(context.Background())

	rt.mu.Lock()
	ctx, spec := rt.ctxs[0], rt.specs[0]
	rt.mu.Unlock()
	if signals.IsPrimary(ctx) {
		t.Fatalf("expected runtime to receive a secondary context")
	}
	want := runtime.StartSpec{
		Name:        "ctx",
		Command:     []string{"./worker"},
		Env:         map[string]string{"K": "V"},
		Workdir:     "/srv",
		FateSharing: config.FateSharingRequired,
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Fatalf("start spec mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveRestartPolicy(t *testing.T) {
	cases := []struct {
		name string
		w    *config.WorkerSpec
		want restartPolicy
	}{
		{
			name: "defaults",
			w:    &config.WorkerSpec{},
			want: restartPolicy{maxRetries: 3, min: defaultBackoffMin, max: defaultBackoffMax, factor: defaultBackoffFactor},
		},
		{
			name: "unlimited",
			w:    &config.WorkerSpec{RestartPolicy: &config.RestartPolicy{MaxRetries: -5}},
			want: restartPolicy{maxRetries: -1, min: defaultBackoffMin, max: defaultBackoffMax, factor: defaultBackoffFactor},
		},
		{
			name: "max below min",
			w:    workerWithPolicy(2, time.Minute, time.Second),
			want: restartPolicy{maxRetries: 2, min: time.Minute, max: time.Minute, factor: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveRestartPolicy(tc.w)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
