package fateshare

import (
	"os"
	"os/exec"
)

// binder is the platform half of fate-sharing, chosen at build time.
type binder interface {
	// prepare configures cmd so the child binds itself between fork and exec.
	prepare(cmd *exec.Cmd)
	// bindSelf binds the calling process to its parent.
	bindSelf() error
	// bindJob assigns child to job.
	bindJob(job, child Handle) error
	// bindProcess resolves p to a handle and assigns it to job.
	bindProcess(job Handle, p *os.Process) error
}

var platform binder = newPlatformBinder()

// BindChildToParent asks the kernel to SIGKILL the calling process when its
// parent exits. It must run inside the child before the real workload starts.
// It panics with a *ContractViolation unless the parent-death-signal mechanism
// was detected.
func (d *Detector) BindChildToParent() error {
	d.require("prctl(PR_SET_PDEATHSIG)", MechanismParentDeathSignal)
	return platform.bindSelf()
}

// BindChildToJob assigns the child process handle to the detector's job
// object. It must be called by the parent right after the child is created.
// It panics with a *ContractViolation unless the job-object mechanism was
// detected.
func (d *Detector) BindChildToJob(child Handle) error {
	capability := d.require("AssignProcessToJobObject", MechanismJobObject)
	return platform.bindJob(capability.job, child)
}

// BindProcess is BindChildToJob for an *os.Process.
func (d *Detector) BindProcess(p *os.Process) error {
	capability := d.require("AssignProcessToJobObject", MechanismJobObject)
	return platform.bindProcess(capability.job, p)
}

// Prepare arranges for cmd's child to bind itself before exec when the host
// uses the parent-death-signal mechanism. It is a no-op otherwise.
func (d *Detector) Prepare(cmd *exec.Cmd) {
	if d.Mechanism() == MechanismParentDeathSignal {
		platform.prepare(cmd)
	}
}

// Attach binds an already started child when the host uses the job-object
// mechanism. It is a no-op otherwise.
func (d *Detector) Attach(p *os.Process) error {
	if d.Mechanism() != MechanismJobObject {
		return nil
	}
	return d.BindProcess(p)
}

// BindChildToParent calls Detector.BindChildToParent on the default detector.
func BindChildToParent() error {
	return defaultDetector.BindChildToParent()
}

// BindChildToJob calls Detector.BindChildToJob on the default detector.
func BindChildToJob(child Handle) error {
	return defaultDetector.BindChildToJob(child)
}

// BindProcess calls Detector.BindProcess on the default detector.
func BindProcess(p *os.Process) error {
	return defaultDetector.BindProcess(p)
}

// Prepare calls Detector.Prepare on the default detector.
func Prepare(cmd *exec.Cmd) {
	defaultDetector.Prepare(cmd)
}

// Attach calls Detector.Attach on the default detector.
func Attach(p *os.Process) error {
	return defaultDetector.Attach(p)
}
