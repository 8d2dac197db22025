package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/config"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/history"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/session"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/ui/live"
)

func runRun(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", "", "Path to config file (default: search for .pipsync/config.yml)")
		clientID := fs.String("client", "", "Client tenant id")
		entity := fs.String("entity", "students", "Entity type: students or staff")
		platform := fs.String("platform", "all", "Target platform: all, cloud, or onpremise")
		sot := fs.String("sot", "", "Source of truth system")
		enqueue := fs.Bool("enqueue", false, "Also enqueue downstream provisioning")
		includeDefaults := fs.Bool("include-defaults", false, "Apply the platform's default attribute set")
		join := fs.Bool("join", false, "Join the conflicting run if one is already active")
		uiMode := fs.String("ui", "auto", "Output mode: auto, live, or plain")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		if *clientID == "" || *sot == "" {
			fmt.Fprintln(stderr, "both --client and --sot are required")
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
		if *entity != "students" && *entity != "staff" {
			fmt.Fprintf(stderr, "unknown entity type %q (want students or staff)\n", *entity)
			return ExitUsage
		}
		mode, err := resolveUIMode(*uiMode, stdout)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsage
		}

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		warnTokenExpiry(cfg, stderr)

		return observeCommand(cfg, mode, *join, stdout, stderr, func(ctx context.Context, run *runner.Runner) error {
			return run.Run(ctx, *clientID, runner.RunConfig{
				EntityType:          *entity,
				TargetPlatform:      *platform,
				SourceOfTruth:       *sot,
				EnqueueProvisioning: *enqueue,
				IncludeDefaults:     *includeDefaults,
			})
		})
	}
}

// observeCommand wires a runner with session, history, and UI plumbing,
// invokes start, and blocks until the run settles. The runner's poll
// loops are parented to a background context: an interrupt requests
// cancellation but observation continues until the server confirms.
func observeCommand(cfg config.Config, mode string, autoJoin bool, stdout, stderr io.Writer, start func(context.Context, *runner.Runner) error) int {
	sessions, err := session.OpenSQLite(cfg.Session.Path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open session store: %v\n", err)
		return ExitError
	}
	defer sessions.Close()

	logger := newLogger(stderr)
	var observers runner.Observers
	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("run history disabled", "error", err)
	} else {
		defer hist.Close()
		observers = append(observers, history.NewRecorder(hist, logger))
	}

	deps := runner.Deps{PollInterval: time.Duration(cfg.Sync.ProgressIntervalMs) * time.Millisecond}
	svc := newSyncClient(cfg)

	if mode == "live" {
		return observeLive(svc, sessions, observers, deps, stdout, stderr, start)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs := newPlainObserver(stdout)
	run := runner.New(svc, sessions, append(observers, obs), deps)
	defer run.Close()
	if err := start(context.Background(), run); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	state := waitPlain(ctx, run, obs, autoJoin, stderr)
	return printOutcome(state, stdout)
}

// observeLive runs the Bubble Tea view. Stop and join are driven by the
// UI's own key bindings, so the signal context is not needed: Ctrl+C
// reaches the UI as a key event.
func observeLive(svc runner.Service, sessions session.Store, observers runner.Observers, deps runner.Deps, stdout, stderr io.Writer, start func(context.Context, *runner.Runner) error) int {
	var run *runner.Runner
	controller := live.Start(stdout, live.Options{
		OnStop: func() error { return run.Stop(context.Background()) },
		OnJoin: func() error { return run.Join(context.Background()) },
	})
	run = runner.New(svc, sessions, append(observers, controller), deps)
	defer run.Close()

	if err := start(context.Background(), run); err != nil {
		controller.Close()
		controller.Wait()
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	controller.Wait()
	return printOutcome(run.State(), stdout)
}
