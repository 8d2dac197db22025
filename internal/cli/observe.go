package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// stopGrace is how long the CLI waits for the server to confirm a
// cancellation after an interrupt before giving up.
const stopGrace = 30 * time.Second

// plainObserver streams run output as plain lines, for non-interactive
// use. Terminal transitions are forwarded to the waiting command loop.
type plainObserver struct {
	stdout io.Writer

	mu        sync.Mutex
	terminals chan runner.RunState
}

func newPlainObserver(stdout io.Writer) *plainObserver {
	return &plainObserver{stdout: stdout, terminals: make(chan runner.RunState, 4)}
}

// OnTransition implements runner.RunObserver.
func (o *plainObserver) OnTransition(state runner.RunState) {
	if !state.Status.Terminal() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case o.terminals <- state:
	default:
	}
}

// OnLogLine implements runner.RunObserver.
func (o *plainObserver) OnLogLine(line runner.LogLine) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if line.Level != "" && line.Level != "info" {
		fmt.Fprintf(o.stdout, "%s [%s] %s\n", line.Timestamp, line.Level, line.Message)
		return
	}
	fmt.Fprintf(o.stdout, "%s %s\n", line.Timestamp, line.Message)
}

// OnPollWarning implements runner.RunObserver.
func (o *plainObserver) OnPollWarning(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.stdout, "poll warning: %v\n", err)
}

// waitPlain blocks until the observed run settles. An interrupt requests
// cancellation once and keeps waiting for the server to confirm; a
// blocked outcome joins the conflicting run when autoJoin is set.
func waitPlain(ctx context.Context, run *runner.Runner, obs *plainObserver, autoJoin bool, stderr io.Writer) runner.RunState {
	var stopRequested bool
	var deadline <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if !stopRequested {
				stopRequested = true
				fmt.Fprintln(stderr, "Interrupt received, requesting cancellation")
				_ = run.Stop(context.Background())
				deadline = time.After(stopGrace)
			}
			ctx = context.Background()
		case <-deadline:
			fmt.Fprintln(stderr, "Cancellation not confirmed in time, detaching")
			return run.State()
		case state := <-obs.terminals:
			if state.Status == runner.StatusBlocked && autoJoin && state.AttachedSessionID != "" {
				if err := run.Join(context.Background()); err == nil {
					continue
				}
			}
			return state
		}
	}
}

// printOutcome writes the final run summary and returns the process exit
// code for it.
func printOutcome(state runner.RunState, stdout io.Writer) int {
	switch state.Status {
	case runner.StatusSuccess:
		fmt.Fprintf(stdout, "Run %s succeeded\n", state.CorrelationID)
		printStats(state, stdout)
		return ExitOK
	case runner.StatusCancelled:
		fmt.Fprintf(stdout, "Run %s cancelled\n", state.CorrelationID)
		return ExitError
	case runner.StatusBlocked:
		fmt.Fprintf(stdout, "Another sync run is active: %s\n", state.AttachedSessionID)
		fmt.Fprintln(stdout, "Re-run with --join to observe it instead.")
		return ExitError
	case runner.StatusError:
		fmt.Fprintf(stdout, "Run %s failed: %s\n", state.CorrelationID, state.ErrorMessage)
		printStats(state, stdout)
		return ExitError
	default:
		fmt.Fprintf(stdout, "Detached from run %s while %s\n", state.CorrelationID, state.Status)
		return ExitError
	}
}

func printStats(state runner.RunState, stdout io.Writer) {
	if state.Stats == nil {
		return
	}
	if v, ok := state.Stats.Sync["RecordCount"]; ok {
		fmt.Fprintf(stdout, "Records synced: %v\n", v)
	}
	if v, ok := state.Stats.Rules["RuleMatchCount"]; ok {
		fmt.Fprintf(stdout, "Rule matches: %v\n", v)
	}
	if v, ok := state.Stats.Rules["RuleErrorCount"]; ok {
		fmt.Fprintf(stdout, "Rule errors: %v\n", v)
	}
}
