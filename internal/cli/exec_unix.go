//go:build !windows

package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/fateshare"
)

// childBinder is the part of *fateshare.Detector the exec wrapper needs.
type childBinder interface {
	Detect() bool
	Mechanism() fateshare.Mechanism
	BindChildToParent() error
}

var execve = unix.Exec

func execWorker(_ stdcontext.Context, logger *slog.Logger, args []string) error {
	// The parent-death signal belongs to the calling thread, so binding and
	// exec must happen on the same one.
	goruntime.LockOSThread()

	mode := os.Getenv(fateSharingEnv())
	if err := bindForMode(logger, fateshare.Default(), mode); err != nil {
		return &exitError{code: 126, err: err}
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return &exitError{code: 127, err: fmt.Errorf("exec %s: %w", args[0], err)}
	}
	env := stripEnv(os.Environ(), fateSharingEnv())
	if err := execve(path, args, env); err != nil {
		return &exitError{code: 126, err: fmt.Errorf("exec %s: %w", path, err)}
	}
	return nil
}

// bindForMode binds the current process to its parent according to the
// fate-sharing mode passed down by the supervisor. An empty mode means auto.
func bindForMode(logger *slog.Logger, b childBinder, mode string) error {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.FateSharingOff:
		return nil
	case "", config.FateSharingAuto:
		if !b.Detect() || b.Mechanism() != fateshare.MechanismParentDeathSignal {
			logger.Warn("fate sharing unavailable; worker may outlive the supervisor")
			return nil
		}
		if err := b.BindChildToParent(); err != nil {
			if errors.Is(err, fateshare.ErrParentGone) {
				return err
			}
			logger.Warn("bind to parent failed", "error", err)
		}
		return nil
	case config.FateSharingRequired:
		if !b.Detect() || b.Mechanism() != fateshare.MechanismParentDeathSignal {
			return fmt.Errorf("bind to parent: %w", fateshare.ErrUnsupported)
		}
		return b.BindChildToParent()
	default:
		return fmt.Errorf("unknown fate-sharing mode %q", mode)
	}
}
