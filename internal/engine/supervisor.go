package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/metrics"
	"github.com/Paintersrp/tether/internal/runtime"
	"github.com/Paintersrp/tether/internal/signals"
)

const (
	defaultBackoffMin    = time.Second
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffFactor = 2.0
	instanceStopTimeout  = 5 * time.Second
)

type restartPolicy struct {
	maxRetries int
	min        time.Duration
	max        time.Duration
	factor     float64
}

// supervisor manages the lifecycle of a single worker. It runs the worker from
// a dedicated goroutine and restarts it according to the restart policy.
type supervisor struct {
	name    string
	spec    runtime.StartSpec
	runtime runtime.Runtime

	events chan<- Event

	policy restartPolicy

	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error

	startedOnce sync.Once
	startedCh   chan error

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}

	mu      sync.Mutex
	current runtime.Handle
	stopCtx context.Context
	stopErr error
	runErr  error

	stopOnce sync.Once
}

func newSupervisor(name string, w *config.WorkerSpec, rt runtime.Runtime, events chan<- Event) *supervisor {
	sup := &supervisor{
		name:      name,
		spec:      buildStartSpec(name, w),
		runtime:   rt,
		events:    events,
		startedCh: make(chan error, 1),
		done:      make(chan struct{}),
	}

	sup.policy = deriveRestartPolicy(w)
	sup.jitter = defaultJitter
	sup.sleep = sleepWithContext

	return sup
}

func buildStartSpec(name string, w *config.WorkerSpec) runtime.StartSpec {
	spec := runtime.StartSpec{Name: name}
	if w == nil {
		return spec
	}
	if len(w.Command) > 0 {
		spec.Command = append([]string(nil), w.Command...)
	}
	if len(w.Env) > 0 {
		env := make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			env[k] = v
		}
		spec.Env = env
	}
	spec.Workdir = w.ResolvedWorkdir
	spec.FateSharing = w.FateSharing
	return spec
}

func deriveRestartPolicy(w *config.WorkerSpec) restartPolicy {
	pol := restartPolicy{maxRetries: 3, min: defaultBackoffMin, max: defaultBackoffMax, factor: defaultBackoffFactor}
	if w == nil || w.RestartPolicy == nil {
		return pol
	}

	rp := w.RestartPolicy
	switch {
	case rp.MaxRetries < 0:
		pol.maxRetries = -1
	default:
		pol.maxRetries = rp.MaxRetries
	}
	if rp.Backoff != nil {
		if rp.Backoff.Min.Duration > 0 {
			pol.min = rp.Backoff.Min.Duration
		}
		if rp.Backoff.Max.Duration > 0 {
			pol.max = rp.Backoff.Max.Duration
		}
		if rp.Backoff.Factor > 0 {
			pol.factor = rp.Backoff.Factor
		}
	}

	if pol.max < pol.min {
		pol.max = pol.min
	}
	if pol.factor <= 1 {
		pol.factor = defaultBackoffFactor
	}

	return pol
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// Full jitter: random duration in [0, d].
	return time.Duration(rand.Float64() * float64(d))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start launches the supervision goroutine. Its context is secondary: signal
// guards entered below it are pass-through.
func (s *supervisor) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(signals.Secondary(ctx))
	go s.run()
}

func (s *supervisor) run() {
	defer close(s.done)

	restarts := 0
	backoffBase := s.policy.min
	reason := ReasonInitialStart

	for {
		if err := s.ctx.Err(); err != nil {
			s.deliverStarted(err)
			s.setRunErr(err)
			return
		}

		sendEvent(s.events, s.name, EventTypeStarting, "starting worker", restarts, reason, nil)

		instance, err := s.runtime.Start(s.ctx, s.spec)
		if err != nil {
			if s.ctx.Err() != nil {
				s.deliverStarted(s.ctx.Err())
				s.setRunErr(s.ctx.Err())
				return
			}

			if errors.Is(err, fateshare.ErrUnsupported) {
				sendEvent(s.events, s.name, EventTypeFailed, "worker requires fate-sharing", restarts, ReasonUnsupported, err)
				s.deliverStarted(err)
				s.setRunErr(err)
				return
			}

			sendEvent(s.events, s.name, EventTypeCrashed, "start failed", restarts, ReasonStartFailure, err)
			if !s.allowRestart(restarts) {
				sendEvent(s.events, s.name, EventTypeFailed, "worker failed", restarts, ReasonRetriesExhaust, err)
				s.deliverStarted(err)
				s.setRunErr(err)
				return
			}

			restarts++
			metrics.IncrementWorkerRestart(s.name)
			reason = ReasonRestart
			if err := s.sleepBackoff(&backoffBase); err != nil {
				s.deliverStarted(err)
				s.setRunErr(err)
				return
			}
			continue
		}

		s.setCurrent(instance)
		s.emitStarted(instance, restarts, reason)
		s.deliverStarted(nil)
		instErr := s.manageInstance(instance)
		s.clearCurrent()

		if instErr == nil {
			s.setRunErr(nil)
			return
		}

		sendEvent(s.events, s.name, EventTypeCrashed, "worker crashed", restarts, ReasonInstanceCrash, instErr)
		if !s.allowRestart(restarts) {
			sendEvent(s.events, s.name, EventTypeFailed, "worker failed", restarts, ReasonRetriesExhaust, instErr)
			s.setRunErr(instErr)
			return
		}

		restarts++
		metrics.IncrementWorkerRestart(s.name)
		reason = ReasonRestart
		if err := s.sleepBackoff(&backoffBase); err != nil {
			s.setRunErr(nil)
			return
		}
	}
}

func (s *supervisor) emitStarted(instance runtime.Handle, attempt int, reason string) {
	if s.events == nil {
		return
	}
	s.events <- Event{
		Timestamp: time.Now(),
		Worker:    s.name,
		Type:      EventTypeStarted,
		Message:   "worker started",
		Level:     "info",
		Source:    runtime.LogSourceSystem,
		Attempt:   attempt,
		Reason:    reason,
		PID:       instance.PID(),
		Bound:     instance.Bound(),
	}
}

func (s *supervisor) allowRestart(restarts int) bool {
	if s.policy.maxRetries < 0 {
		return true
	}
	return restarts < s.policy.maxRetries
}

func (s *supervisor) sleepBackoff(base *time.Duration) error {
	delay := *base
	if delay <= 0 {
		delay = s.policy.min
	}
	if delay > s.policy.max {
		delay = s.policy.max
	}

	jittered := s.jitter(delay)
	if jittered > s.policy.max {
		jittered = s.policy.max
	}
	if jittered < 0 {
		jittered = 0
	}

	if err := s.sleep(s.ctx, jittered); err != nil {
		return err
	}

	next := float64(delay) * s.policy.factor
	if math.IsInf(next, 0) || next > float64(s.policy.max) {
		*base = s.policy.max
		return nil
	}
	n := time.Duration(next)
	if n < s.policy.min {
		n = s.policy.min
	}
	*base = n
	return nil
}

// manageInstance returns nil when the worker ended on request or exited
// cleanly, and the exit error when it crashed.
func (s *supervisor) manageInstance(instance runtime.Handle) error {
	var logWG sync.WaitGroup
	logs, err := instance.Logs(s.ctx)
	if err != nil {
		sendEvent(s.events, s.name, EventTypeError, "log stream unavailable", 0, ReasonLogStreamError, err)
	} else if logs != nil {
		logWG.Add(1)
		go s.streamLogs(logs, &logWG)
	}

	waitCh := make(chan error, 1)
	waitCtx, waitCancel := context.WithCancel(context.Background())
	defer waitCancel()
	go func() {
		waitCh <- instance.Wait(waitCtx)
	}()

	select {
	case err := <-waitCh:
		logWG.Wait()
		if s.ctx.Err() != nil {
			sendEvent(s.events, s.name, EventTypeStopped, "worker stopped", 0, ReasonSupervisorStop, nil)
			return nil
		}
		if err == nil {
			sendEvent(s.events, s.name, EventTypeExited, "worker exited", 0, ReasonCleanExit, nil)
			return nil
		}
		return err
	case <-s.ctx.Done():
		sendEvent(s.events, s.name, EventTypeStopping, "stopping worker", 0, ReasonShutdown, nil)
		err := s.stopInstance(instance, s.stopContext())
		s.setStopErr(err)
		if err != nil {
			sendEvent(s.events, s.name, EventTypeError, "stop failed", 0, ReasonStopFailed, err)
		}
		logWG.Wait()
		sendEvent(s.events, s.name, EventTypeStopped, "worker stopped", 0, ReasonShutdown, nil)
		return nil
	}
}

func (s *supervisor) streamLogs(logs <-chan runtime.LogEntry, wg *sync.WaitGroup) {
	defer wg.Done()
	var dropped int
	for entry := range logs {
		if entry.Message == "" {
			continue
		}
		if dropped > 0 {
			if !s.emitDropped(dropped, false) {
				dropped++
				continue
			}
			dropped = 0
		}
		evt := s.normalizeLog(entry)
		if !s.emitLog(evt, false) {
			dropped++
		}
	}
	if dropped > 0 {
		s.emitDropped(dropped, true)
	}
}

func (s *supervisor) normalizeLog(entry runtime.LogEntry) Event {
	level := entry.Level
	source := entry.Source
	if source == "" {
		source = runtime.LogSourceStdout
	}
	if level == "" {
		if source == runtime.LogSourceStderr {
			level = "warn"
		} else {
			level = "info"
		}
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		Timestamp: ts,
		Worker:    s.name,
		Type:      EventTypeLog,
		Message:   entry.Message,
		Level:     level,
		Source:    source,
	}
}

func (s *supervisor) emitLog(evt Event, block bool) bool {
	if s.events == nil {
		return true
	}
	if block {
		select {
		case s.events <- evt:
			return true
		case <-s.ctx.Done():
			return false
		}
	}
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

func (s *supervisor) emitDropped(count int, block bool) bool {
	evt := Event{
		Timestamp: time.Now(),
		Worker:    s.name,
		Type:      EventTypeLog,
		Message:   fmt.Sprintf("dropped=%d", count),
		Level:     "warn",
		Source:    runtime.LogSourceSystem,
	}
	return s.emitLog(evt, block)
}

func (s *supervisor) stopInstance(instance runtime.Handle, ctx context.Context) error {
	if instance == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, instanceStopTimeout)
		defer cancel()
	}
	return instance.Stop(ctx)
}

func (s *supervisor) setCurrent(inst runtime.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = inst
}

func (s *supervisor) clearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Current returns the running instance, or nil between restarts.
func (s *supervisor) Current() runtime.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *supervisor) stopContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCtx != nil {
		return s.stopCtx
	}
	return context.Background()
}

func (s *supervisor) setStopErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopErr = err
}

func (s *supervisor) getStopErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}

func (s *supervisor) setRunErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runErr = err
}

func (s *supervisor) getRunErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

func (s *supervisor) deliverStarted(err error) {
	s.startedOnce.Do(func() {
		s.startedCh <- err
		close(s.startedCh)
	})
}

// AwaitStarted blocks until the first instance was started or the supervisor
// gave up trying.
func (s *supervisor) AwaitStarted(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.startedCh:
		return err
	}
}

func (s *supervisor) Stop(ctx context.Context) error {
	var result error
	s.stopOnce.Do(func() {
		alreadyDone := false
		select {
		case <-s.done:
			alreadyDone = true
		default:
		}

		s.mu.Lock()
		s.stopCtx = ctx
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if alreadyDone {
			return
		}

		select {
		case <-s.done:
			result = s.getStopErr()
		case <-ctx.Done():
			result = ctx.Err()
		}
	})
	return result
}
