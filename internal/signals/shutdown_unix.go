//go:build !windows

package signals

import "syscall"

var shutdownSignal = syscall.SIGTERM
