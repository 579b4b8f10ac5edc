//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

func (p *processInstance) Stop(ctx context.Context) error {
	return p.terminate(ctx, false)
}

func (p *processInstance) Kill(ctx context.Context) error {
	return p.terminate(ctx, true)
}

func (p *processInstance) terminate(ctx context.Context, force bool) error {
	if p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.waitDone:
		return nil
	default:
	}

	if !force {
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("signal process group %s: %w", p.name, err)
		}

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.waitDone:
			return nil
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill process group %s: %w", p.name, err)
	}
	select {
	case <-p.waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
