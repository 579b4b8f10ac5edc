//go:build linux

package fateshare

import (
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// initialParent is the parent observed at startup. A child that binds itself
// later compares against it to notice a parent that died in between.
var initialParent = os.Getppid()

// platformProbe checks that prctl accepts the parent-death-signal options.
// Sandboxes that filter prctl (seccomp, gVisor) report an error here.
func platformProbe() (Capability, error) {
	sig := new(int32)
	err := unix.Prctl(unix.PR_GET_PDEATHSIG, uintptr(unsafe.Pointer(sig)), 0, 0, 0)
	runtime.KeepAlive(sig)
	if err != nil {
		return Capability{}, &OSError{Op: "prctl(PR_GET_PDEATHSIG)", Err: err}
	}
	return Capability{Mechanism: MechanismParentDeathSignal}, nil
}

type linuxBinder struct{}

func newPlatformBinder() binder {
	return linuxBinder{}
}

func (linuxBinder) prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

func (linuxBinder) bindSelf() error {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		return &OSError{Op: "prctl(PR_SET_PDEATHSIG)", Err: err}
	}
	if os.Getppid() != initialParent {
		return ErrParentGone
	}
	return nil
}

func (linuxBinder) bindJob(Handle, Handle) error {
	return ErrUnsupported
}

func (linuxBinder) bindProcess(Handle, *os.Process) error {
	return ErrUnsupported
}
