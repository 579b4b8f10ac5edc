package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/tether/internal/api"
	apihttp "github.com/Paintersrp/tether/internal/api/http"
	"github.com/Paintersrp/tether/internal/cliutil"
	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/engine"
	"github.com/Paintersrp/tether/internal/fateshare"
	"github.com/Paintersrp/tether/internal/metrics"
	"github.com/Paintersrp/tether/internal/runtime"
	_ "github.com/Paintersrp/tether/internal/runtime/process"
	"github.com/Paintersrp/tether/internal/signals"
)

const eventDrainTimeout = time.Second

var newAPIServer = apihttp.NewServer

type runOptions struct {
	metricsAddr string
	lockFile    string
}

func newRunCmd(ctx *context) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start and supervise the workers in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers(cmd.Context(), ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and the status API on this address")
	cmd.Flags().StringVar(&opts.lockFile, "lock-file", "", "Lock file guarding the manifest (default <manifest>.lock)")
	return cmd
}

func runWorkers(ctx stdcontext.Context, c *context, opts runOptions) error {
	logger := c.log()

	doc, err := c.loadManifest(ctx)
	if err != nil {
		if errors.Is(err, signals.ErrDeferredInterrupt) {
			metrics.IncrementDeferredInterrupt("manifest_load")
		}
		return err
	}

	lockPath := opts.lockFile
	if lockPath == "" {
		lockPath = defaultLockPath(doc.Source)
	}
	lock, err := acquireManifestLock(ctx, lockPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	detector := fateshare.Default()
	supported := detector.Detect()
	mechanism := detector.Mechanism().String()
	metrics.SetFateSharing(mechanism, supported)
	logger.Info("fate sharing", "supported", supported, "mechanism", mechanism)
	if !supported {
		for _, name := range doc.WorkersSorted() {
			if doc.Workers[name].FateSharing == config.FateSharingRequired {
				logger.Warn("worker requires fate sharing on an unsupported host", "worker", name)
			}
		}
	}

	group, err := engine.NewGroup(doc, runtime.NewRegistry())
	if err != nil {
		return err
	}

	redactor := manifestRedactor(doc)
	tracker := newStatusTracker(
		doc.Supervisor.Name,
		doc.Source,
		api.FateSharingReport{Supported: supported, Mechanism: mechanism},
		group.Workers(),
		withRedactor(redactor),
	)

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for evt := range group.Events() {
			tracker.Apply(evt)
			cliutil.LogEvent(ctx, logger, redactor, evt)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	notify := func(sig os.Signal) {
		select {
		case sigCh <- sig:
		default:
		}
	}
	if err := signals.Handle(ctx, signals.CancelSignal, notify); err != nil {
		return err
	}
	defer signals.Handle(ctx, signals.CancelSignal, nil)
	if signals.ShutdownSignal() != signals.CancelSignal {
		if err := signals.SetShutdownHandler(ctx, notify); err != nil {
			return err
		}
		defer signals.SetShutdownHandler(ctx, nil)
	}

	runCtx, cancel := stdcontext.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown requested", "signal", sig.String())
			return run.SignalError{Signal: sig}
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}, func(error) {
		cancel()
	})

	g.Add(func() error {
		err := signals.Deferred(runCtx, signals.CancelSignal, group.Start)
		if err != nil {
			if errors.Is(err, signals.ErrDeferredInterrupt) {
				metrics.IncrementDeferredInterrupt("group_start")
			}
			return err
		}
		logger.Info("workers started", "supervisor", doc.Supervisor.Name, "workers", len(group.Workers()))
		return group.Wait(runCtx)
	}, func(error) {
		tracker.Close()
		stopCtx, stopCancel := stdcontext.WithTimeout(stdcontext.Background(), doc.Supervisor.ShutdownTimeout.Duration)
		defer stopCancel()
		if err := group.Stop(stopCtx); err != nil {
			logger.Error("stop workers", "error", err)
		}
		cancel()
	})

	if opts.metricsAddr != "" {
		server, err := newAPIServer(apihttp.Config{Addr: opts.metricsAddr, Controller: tracker})
		if err != nil {
			return err
		}
		serverCtx, serverCancel := stdcontext.WithCancel(stdcontext.Background())
		g.Add(func() error {
			logger.Info("serving metrics", "addr", server.Addr())
			if err := server.Run(serverCtx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			serverCancel()
		})
	}

	err = g.Run()

	select {
	case <-eventsDone:
	case <-time.After(eventDrainTimeout):
		logger.Debug("event stream still open after shutdown")
	}

	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		return nil
	}
	return err
}

// manifestRedactor masks secret-looking env values of every worker.
func manifestRedactor(doc *config.Manifest) *cliutil.Redactor {
	var keys, values []string
	for _, name := range doc.WorkersSorted() {
		k, v := cliutil.SecretEnv(doc.Workers[name].Env)
		keys = append(keys, k...)
		values = append(values, v...)
	}
	return cliutil.NewRedactor(keys...).WithValues(values...)
}
