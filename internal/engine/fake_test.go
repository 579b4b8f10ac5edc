package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Paintersrp/tether/internal/runtime"
)

var errStopped = errors.New("stopped")

type fakeRuntime struct {
	mu        sync.Mutex
	instances []*fakeInstance
	specs     []runtime.StartSpec
	ctxs      []context.Context
	startCh   chan struct{}
}

func (f *fakeRuntime) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	f.ctxs = append(f.ctxs, ctx)
	if f.startCh != nil {
		select {
		case f.startCh <- struct{}{}:
		default:
		}
	}
	if len(f.instances) == 0 {
		return nil, errors.New("no instances configured")
	}
	inst := f.instances[0]
	f.instances = f.instances[1:]
	if inst.startErr != nil {
		return nil, inst.startErr
	}
	return inst, nil
}

func (f *fakeRuntime) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

type fakeInstance struct {
	exit   chan error
	logsCh chan runtime.LogEntry

	pid   int
	bound bool

	stopErr  error
	startErr error
	stopped  atomic.Bool
}

// exitsWith returns an instance that has already exited with err.
func exitsWith(err error) *fakeInstance {
	inst := running()
	inst.exit <- err
	return inst
}

// running returns an instance that runs until stopped.
func running() *fakeInstance {
	return &fakeInstance{exit: make(chan error, 1), pid: 4242}
}

func failsToStart(err error) *fakeInstance {
	return &fakeInstance{startErr: err}
}

func (f *fakeInstance) Wait(ctx context.Context) error {
	select {
	case err := <-f.exit:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeInstance) Stop(ctx context.Context) error {
	f.stopped.Store(true)
	select {
	case f.exit <- errStopped:
	default:
	}
	return f.stopErr
}

func (f *fakeInstance) Kill(ctx context.Context) error {
	return f.Stop(ctx)
}

func (f *fakeInstance) Logs(context.Context) (<-chan runtime.LogEntry, error) {
	return f.logsCh, nil
}

func (f *fakeInstance) PID() int    { return f.pid }
func (f *fakeInstance) Bound() bool { return f.bound }

func waitDone(t *testing.T, sup *supervisor) {
	t.Helper()
	select {
	case <-sup.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for supervisor %s to finish", sup.name)
	}
}

func drain(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case evt := <-events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, evt := range events {
		if evt.Type == EventTypeLog {
			continue
		}
		out = append(out, evt.Type)
	}
	return out
}
