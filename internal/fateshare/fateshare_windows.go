//go:build windows

package fateshare

import (
	"errors"
	"os"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32           = windows.NewLazySystemDLL("kernel32.dll")
	procIsDebuggerPresent = modkernel32.NewProc("IsDebuggerPresent")
)

func debuggerAttached() bool {
	if err := procIsDebuggerPresent.Find(); err != nil {
		return false
	}
	ret, _, _ := procIsDebuggerPresent.Call()
	return ret != 0
}

// platformProbe creates the job object that every bound worker joins. The
// handle is not inheritable and is never closed: process exit closes it, which
// is what kills the job's members.
func platformProbe() (Capability, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return Capability{}, &OSError{Op: "CreateJobObject", Err: err}
	}

	var info windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
	info.BasicLimitInformation.LimitFlags = jobLimitFlags(debuggerAttached())
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return Capability{}, &OSError{Op: "SetInformationJobObject", Err: err}
	}
	return Capability{Mechanism: MechanismJobObject, job: Handle(job)}, nil
}

type windowsBinder struct{}

func newPlatformBinder() binder {
	return windowsBinder{}
}

func (windowsBinder) prepare(*exec.Cmd) {}

func (windowsBinder) bindSelf() error {
	return ErrUnsupported
}

func (windowsBinder) bindJob(job, child Handle) error {
	if err := windows.AssignProcessToJobObject(windows.Handle(job), windows.Handle(child)); err != nil {
		return &OSError{Op: "AssignProcessToJobObject", Err: err}
	}
	return nil
}

func (b windowsBinder) bindProcess(job Handle, p *os.Process) error {
	if p == nil {
		return errors.New("bind process: nil process")
	}
	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.Pid))
	if err != nil {
		return &OSError{Op: "OpenProcess", Err: err}
	}
	defer windows.CloseHandle(h)
	return b.bindJob(job, Handle(h))
}
