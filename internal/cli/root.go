package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/signals"
)

const (
	envLogLevel  = "TETHER_LOG_LEVEL"
	envLogFormat = "TETHER_LOG_FORMAT"

	defaultManifest = "workers.yaml"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var manifestFile string
	logLevel := envOr(envLogLevel, "info")
	logFormat := os.Getenv(envLogFormat)

	ctx := &context{manifestFile: &manifestFile}

	root := &cobra.Command{
		Use:   "tether",
		Short: "Supervise worker processes that die with their supervisor",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			ctx.logger = logger
			slog.SetDefault(logger)
			fateshare.Default().SetLogger(logger)
			return nil
		},
	}

	root.PersistentFlags().
		StringVarP(&manifestFile, "file", "f", defaultManifest, "Path to worker manifest")
	root.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "Log format (text, json); defaults to text on a terminal")

	root.AddCommand(newDetectCmd(ctx))
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newExecCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx := signals.Primary(stdcontext.Background())

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// exitError carries a specific exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var exitErr *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.code
	case errors.Is(err, signals.ErrDeferredInterrupt):
		return 130
	default:
		return 1
	}
}

func reportError(w io.Writer, err error) int {
	code := exitCode(err)
	var exitErr *exitError
	if errors.As(err, &exitErr) && exitErr.err == nil {
		return code
	}
	fmt.Fprintln(w, err)
	return code
}

var loadConfig = config.Load

type context struct {
	manifestFile *string
	logger       *slog.Logger
}

func (c *context) loadManifest(ctx stdcontext.Context) (*config.Manifest, error) {
	return loadConfig(ctx, *c.manifestFile)
}

func (c *context) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
