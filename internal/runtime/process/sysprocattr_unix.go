//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr puts the worker in its own process group so Stop can
// signal the whole tree. It runs before fate-sharing preparation, which adds
// to the same SysProcAttr.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
