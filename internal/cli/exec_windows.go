//go:build windows

package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// execWorker runs the command as a child. A job object assigned to this
// wrapper is inherited by its children, so no binding happens here.
func execWorker(ctx stdcontext.Context, _ *slog.Logger, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = stripEnv(os.Environ(), fateSharingEnv())
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &exitError{code: exitErr.ExitCode()}
		}
		return &exitError{code: 127, err: fmt.Errorf("exec %s: %w", args[0], err)}
	}
	return nil
}
