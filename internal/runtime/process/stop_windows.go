//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

func (p *processInstance) Stop(ctx context.Context) error {
	if p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.waitDone:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(os.Interrupt)

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.waitDone:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	return p.Kill(ctx)
}

func (p *processInstance) Kill(ctx context.Context) error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	select {
	case <-p.waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
