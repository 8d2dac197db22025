package live

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// Options configures the live run view.
type Options struct {
	// OnStop is called when the user requests cancellation.
	OnStop func() error
	// OnJoin is called when the user joins a blocking session.
	OnJoin func() error
	// Now reports the current time. Defaults to time.Now.
	Now func() time.Time
}

// EventMsg wraps a controller event for the Bubble Tea loop.
type EventMsg struct {
	Event Event
	OK    bool
}

type tickMsg time.Time

// Model is the Bubble Tea model for a live sync run.
type Model struct {
	events   <-chan Event
	opts     Options
	state    runner.RunState
	warning  string
	actions  string
	logs     viewport.Model
	width    int
	height   int
	now      time.Time
	quitting bool
}

// NewModel builds a live view fed by the given event channel.
func NewModel(events <-chan Event, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		events: events,
		opts:   opts,
		logs:   viewport.New(80, 20),
		now:    opts.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.Width = msg.Width
		m.logs.Height = max(msg.Height-chromeHeight, 3)
		m.logs.SetContent(renderLogs(m.state.Logs))
		return m, nil
	case tickMsg:
		m.now = m.opts.Now()
		return m, tick()
	case EventMsg:
		if !msg.OK {
			m.quitting = true
			return m, tea.Quit
		}
		m = m.apply(msg.Event)
		return m, waitForEvent(m.events)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

// apply folds one controller event into the view state.
func (m Model) apply(event Event) Model {
	switch event.Kind {
	case EventState:
		m.state = event.State
		m.logs.SetContent(renderLogs(m.state.Logs))
		m.logs.GotoBottom()
	case EventLog:
		m.state.Logs = append(m.state.Logs, event.Log)
		m.logs.SetContent(renderLogs(m.state.Logs))
		m.logs.GotoBottom()
	case EventWarning:
		m.warning = event.Warning
	}
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "s":
		if m.state.Status == runner.StatusRunning && m.opts.OnStop != nil {
			m.actions = "cancellation requested"
			return m, runAction(m.opts.OnStop)
		}
	case "j":
		if m.state.Status == runner.StatusBlocked && m.opts.OnJoin != nil {
			m.actions = "joining session " + m.state.AttachedSessionID
			return m, runAction(m.opts.OnJoin)
		}
	}
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

// waitForEvent blocks on the controller channel and reports closure so
// the loop can exit once the run is over.
func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		return EventMsg{Event: event, OK: ok}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runAction executes a user action off the update loop. Failures surface
// through the runner's own log stream, so the result is discarded here.
func runAction(fn func() error) tea.Cmd {
	return func() tea.Msg {
		_ = fn()
		return nil
	}
}
