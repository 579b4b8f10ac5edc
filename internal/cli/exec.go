package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/tether/internal/runtime/process"
)

func newExecCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "exec -- command [args...]",
		Short:  "Bind to the parent supervisor, then replace this process with command",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return errors.New("exec requires a command")
			}
			return execWorker(cmd.Context(), ctx.log(), args)
		},
	}
	return cmd
}

// stripEnv removes key from environ so the worker does not inherit the
// supervisor's internal settings.
func stripEnv(environ []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func fateSharingEnv() string {
	return process.EnvFateSharing
}
