package console

import (
	"log/slog"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// envelope is the typed frame pushed over the websocket.
type envelope struct {
	Type    string       `json:"type"`
	State   *stateView   `json:"state,omitempty"`
	Log     *logLineView `json:"log,omitempty"`
	Warning string       `json:"warning,omitempty"`
}

// BroadcastObserver forwards runner updates to connected browser tabs.
type BroadcastObserver struct {
	hub    *Hub
	logger *slog.Logger
}

// NewBroadcastObserver constructs an observer over a hub.
func NewBroadcastObserver(hub *Hub, logger *slog.Logger) *BroadcastObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &BroadcastObserver{hub: hub, logger: logger}
}

// OnTransition implements runner.RunObserver.
func (o *BroadcastObserver) OnTransition(state runner.RunState) {
	view := viewOf(state)
	o.hub.Broadcast(envelope{Type: "state", State: &view})
}

// OnLogLine implements runner.RunObserver.
func (o *BroadcastObserver) OnLogLine(line runner.LogLine) {
	view := logLineView(line)
	o.hub.Broadcast(envelope{Type: "log", Log: &view})
}

// OnPollWarning implements runner.RunObserver.
func (o *BroadcastObserver) OnPollWarning(correlationID string, err error) {
	o.logger.Debug("progress poll failed", "correlation_id", correlationID, "error", err)
	o.hub.Broadcast(envelope{Type: "warning", Warning: err.Error()})
}
