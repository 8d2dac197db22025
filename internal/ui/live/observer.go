package live

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// Controller runs the live UI and implements runner.RunObserver.
type Controller struct {
	program *tea.Program
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	events chan Event
}

// Start launches a live UI controller that writes to stdout.
func Start(stdout io.Writer, opts Options) *Controller {
	if stdout == nil {
		stdout = os.Stdout
	}
	events := make(chan Event, 256)
	model := NewModel(events, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithAltScreen())
	controller := &Controller{
		events:  events,
		program: program,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(controller.done)
	}()
	return controller
}

// Close signals the UI to stop. Observer callbacks arriving afterwards
// are dropped.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Wait blocks until the UI has exited.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	<-c.done
}

// OnTransition forwards state snapshots to the UI and closes it once the
// run settles. A blocked run keeps the UI open so the operator can join
// the conflicting session.
func (c *Controller) OnTransition(state runner.RunState) {
	c.send(Event{Kind: EventState, State: state})
	if state.Status.Terminal() && state.Status != runner.StatusBlocked {
		c.Close()
	}
}

// OnLogLine forwards appended log lines to the UI.
func (c *Controller) OnLogLine(line runner.LogLine) {
	c.send(Event{Kind: EventLog, Log: line})
}

// OnPollWarning forwards transient poll failures to the UI footer.
func (c *Controller) OnPollWarning(correlationID string, err error) {
	c.send(Event{Kind: EventWarning, Warning: err.Error()})
}

// send enqueues an event without blocking the caller.
func (c *Controller) send(event Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}
