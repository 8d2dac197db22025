package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

func runAttach(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", "", "Path to config file (default: search for .pipsync/config.yml)")
		clientID := fs.String("client", "", "Client tenant id whose persisted session to reattach")
		uiMode := fs.String("ui", "auto", "Output mode: auto, live, or plain")
		if err := fs.Parse(args); err != nil {
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

		// A deep link in the environment outranks the persisted session.
		bootstrap := runner.BootstrapFromEnv(os.Getenv)
		return observeCommand(cfg, mode, false, stdout, stderr, func(ctx context.Context, run *runner.Runner) error {
			if run.AttachLink(ctx, bootstrap) {
				return nil
			}
			if *clientID == "" {
				return fmt.Errorf("no deep link in the environment; pass --client to reattach a persisted session")
			}
			attached, err := run.AttachSession(ctx, *clientID)
			if err != nil {
				return err
			}
			if !attached {
				return fmt.Errorf("no persisted sync session for client %s", *clientID)
			}
			return nil
		})
	}
}
