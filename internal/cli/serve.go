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

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/console"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/history"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/session"
)

func runServe(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", "", "Path to config file (default: search for .pipsync/config.yml)")
		addr := fs.String("addr", "", "Listen address (default: console.addr from config)")
		clientID := fs.String("client", "", "Client tenant id whose persisted session to reattach on start")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		warnTokenExpiry(cfg, stderr)

		logger := newLogger(stderr)

		sessions, err := session.OpenSQLite(cfg.Session.Path)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open session store: %v\n", err)
			return ExitError
		}
		defer sessions.Close()

		hub := console.NewHub(logger)
		observers := runner.Observers{console.NewBroadcastObserver(hub, logger)}
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			defer hist.Close()
			observers = append(observers, history.NewRecorder(hist, logger))
		}

		run := runner.New(newSyncClient(cfg), sessions, observers, runner.Deps{
			PollInterval: time.Duration(cfg.Sync.ProgressIntervalMs) * time.Millisecond,
		})
		defer run.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Deep link first, persisted session second. Both are one-shot;
		// the console page retries the deep link on load for links opened
		// after startup.
		if bootstrap := runner.BootstrapFromEnv(os.Getenv); run.AttachLink(ctx, bootstrap) {
			logger.Info("attached via deep link", "correlation_id", bootstrap.CorrelationID)
		} else if *clientID != "" {
			attached, err := run.AttachSession(ctx, *clientID)
			if err != nil {
				logger.Warn("session reattach failed", "client_id", *clientID, "error", err)
			} else if attached {
				logger.Info("reattached persisted session", "client_id", *clientID)
			}
		}

		listenAddr := *addr
		if listenAddr == "" {
			listenAddr = cfg.Console.Addr
		}
		fmt.Fprintf(stdout, "Console listening on http://%s\n", listenAddr)

		err = console.Serve(ctx, console.Config{
			Addr:                  listenAddr,
			Runner:                run,
			Resources:             newResourceClient(cfg),
			Hub:                   hub,
			Logger:                logger,
			ClientRefreshInterval: time.Duration(cfg.Sync.ClientRefreshSeconds) * time.Second,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Console failed: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
}
