//go:build !linux && !windows

package fateshare

import (
	"os"
	"os/exec"
)

// platformProbe reports no mechanism. Darwin and the BSDs have no
// parent-death signal and no job objects.
func platformProbe() (Capability, error) {
	return Capability{Mechanism: MechanismNone}, nil
}

type noopBinder struct{}

func newPlatformBinder() binder {
	return noopBinder{}
}

func (noopBinder) prepare(*exec.Cmd) {}

func (noopBinder) bindSelf() error { return ErrUnsupported }

func (noopBinder) bindJob(Handle, Handle) error { return ErrUnsupported }

func (noopBinder) bindProcess(Handle, *os.Process) error { return ErrUnsupported }
