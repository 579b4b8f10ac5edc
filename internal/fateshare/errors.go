package fateshare

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrUnsupported reports that the host lacks a fate-sharing primitive.
var ErrUnsupported = errors.New("fate-sharing is not supported on this platform")

// ErrParentGone reports that the parent exited before the child finished
// binding itself, so the death signal will never arrive.
var ErrParentGone = errors.New("parent process exited before fate-sharing was established")

// OSError carries the platform error returned by a probe or bind call.
type OSError struct {
	Op  string
	Err error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// Code returns the raw platform error number, or -1 when none is available.
func (e *OSError) Code() int {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return int(errno)
	}
	return -1
}

// ContractViolation is the panic value raised when a bind entry point is used
// on a host that did not detect the matching mechanism.
type ContractViolation struct {
	Op   string
	Want Mechanism
	Have Mechanism
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("%s used despite %s being unavailable (detected %s)", c.Op, c.Want, c.Have)
}

func (c *ContractViolation) Unwrap() error {
	return ErrUnsupported
}
