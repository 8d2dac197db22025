package live

import "github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"

// EventKind identifies the type of live UI event.
type EventKind int

const (
	// EventState delivers a full run state snapshot.
	EventState EventKind = iota
	// EventLog delivers one appended log line.
	EventLog
	// EventWarning delivers a transient poll warning.
	EventWarning
)

// Event carries a UI update payload.
type Event struct {
	Kind    EventKind
	State   runner.RunState
	Log     runner.LogLine
	Warning string
}
