package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	stdruntime "runtime"
	"sort"
	"time"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/metrics"
	"github.com/Paintersrp/tether/internal/runtime"
)

func init() {
	runtime.Register(config.RuntimeProcess, func() runtime.Runtime { return New() })
	runtime.Register(config.RuntimeWrapped, func() runtime.Runtime {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		return NewWrapped(exe)
	})
}

type runtimeImpl struct {
	detector *fateshare.Detector
	logger   *slog.Logger
	grace    time.Duration

	// wrapper is the tether executable for the wrapped runtime; empty means
	// the command is started directly.
	wrapper string
}

// New constructs a runtime that executes workers as local processes and binds
// them from the parent side.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{detector: fateshare.Default(), grace: defaultGracePeriod}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWrapped constructs a runtime that launches workers as
// `executable exec -- command...`; the wrapper binds itself to the supervisor
// before exec'ing the command.
func NewWrapped(executable string, opts ...Option) runtime.Runtime {
	r := New(opts...).(*runtimeImpl)
	r.wrapper = executable
	return r
}

func (r *runtimeImpl) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// delegates reports whether binding is left to the wrapper. A child-applied
// mechanism runs inside the wrapper process, out of the parent's sight; a job
// object is still assigned to the wrapper from here.
func (r *runtimeImpl) delegates() bool {
	return r.wrapper != "" && r.detector.Mechanism() != fateshare.MechanismJobObject
}

// plan decides whether the worker gets bound. It fails only for the required
// mode on a host without a mechanism.
func (r *runtimeImpl) plan(spec runtime.StartSpec) (bool, error) {
	switch spec.FateSharing {
	case config.FateSharingOff:
		return false, nil
	case config.FateSharingRequired:
		if !r.detector.Detect() {
			return false, fmt.Errorf("worker %s requires fate-sharing: %w", spec.Name, fateshare.ErrUnsupported)
		}
		return true, nil
	default:
		if !r.detector.Detect() {
			r.log().Warn("fate-sharing unavailable; worker may outlive the supervisor", "worker", spec.Name)
			return false, nil
		}
		return true, nil
	}
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("process runtime for worker %s requires a command", spec.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bind, err := r.plan(spec)
	if err != nil {
		metrics.RecordBind(spec.Name, metrics.BindUnsupported)
		return nil, err
	}

	argv := spec.Command
	mode := config.FateSharingOff
	if bind {
		mode = spec.FateSharing
		if mode == "" {
			mode = config.FateSharingAuto
		}
	}
	if r.wrapper != "" {
		argv = append([]string{r.wrapper, "exec", "--"}, spec.Command...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Workdir
	cmd.Env = buildEnv(spec.Env)
	if r.wrapper != "" {
		cmd.Env = append(cmd.Env, EnvFateSharing+"="+mode)
	}
	cmd.WaitDelay = defaultWaitDelay

	inst := &processInstance{
		name:     spec.Name,
		cmd:      cmd,
		logs:     make(chan runtime.LogEntry, logBuffer),
		waitDone: make(chan struct{}),
		grace:    r.grace,
	}
	stdout := newLineWriter(inst.emit, runtime.LogSourceStdout, "")
	stderr := newLineWriter(inst.emit, runtime.LogSourceStderr, "warn")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	configureCmdSysProcAttr(cmd)
	if bind && r.wrapper == "" {
		r.detector.Prepare(cmd)
	}

	outcome := metrics.BindSkipped
	if spec.FateSharing != config.FateSharingOff && !bind {
		outcome = metrics.BindUnsupported
	}

	started := make(chan error, 1)
	go func() {
		// Never unlocked: the thread exits with this goroutine, after the
		// worker is gone.
		stdruntime.LockOSThread()

		if err := cmd.Start(); err != nil {
			close(inst.logs)
			started <- fmt.Errorf("start worker %s: %w", spec.Name, err)
			return
		}
		switch {
		case bind && r.delegates():
			// The wrapper binds itself before exec'ing the command; the
			// result is only visible in its own logs and exit status.
			outcome = metrics.BindDelegated
		case bind:
			outcome = metrics.BindBound
			if err := r.detector.Attach(cmd.Process); err != nil {
				outcome = metrics.BindFailed
				if spec.FateSharing == config.FateSharingRequired {
					_ = cmd.Process.Kill()
					_ = cmd.Wait()
					close(inst.logs)
					started <- fmt.Errorf("bind worker %s: %w", spec.Name, err)
					return
				}
				r.log().Warn("fate-sharing bind failed; worker may outlive the supervisor", "worker", spec.Name, "err", err)
			}
		}
		inst.bound = outcome == metrics.BindBound
		started <- nil

		inst.waitErr = cmd.Wait()
		stdout.Close()
		stderr.Close()
		close(inst.logs)
		close(inst.waitDone)
	}()

	err = <-started
	if err == nil || outcome == metrics.BindFailed {
		metrics.RecordBind(spec.Name, outcome)
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

type processInstance struct {
	name     string
	cmd      *exec.Cmd
	logs     chan runtime.LogEntry
	waitDone chan struct{}
	waitErr  error
	grace    time.Duration
	bound    bool
}

func (p *processInstance) emit(entry runtime.LogEntry) {
	entry.Timestamp = time.Now()
	select {
	case p.logs <- entry:
	default:
	}
}

func (p *processInstance) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processInstance) Bound() bool {
	return p.bound
}

func (p *processInstance) Logs(context.Context) (<-chan runtime.LogEntry, error) {
	return p.logs, nil
}

func (p *processInstance) Wait(ctx context.Context) error {
	select {
	case <-p.waitDone:
		return p.exitError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *processInstance) exitError() error {
	if p.waitErr == nil {
		return nil
	}
	return fmt.Errorf("process %s exited: %w", p.name, p.waitErr)
}
