package console

import (
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// stateView is the JSON representation of the run state pushed to the
// browser.
type stateView struct {
	ClientID            string        `json:"clientId"`
	Status              string        `json:"status"`
	CorrelationID       string        `json:"correlationId,omitempty"`
	EntityType          string        `json:"entityType,omitempty"`
	TargetPlatform      string        `json:"targetPlatform,omitempty"`
	SourceOfTruth       string        `json:"sourceOfTruth,omitempty"`
	EnqueueProvisioning bool          `json:"enqueueProvisioning"`
	Logs                []logLineView `json:"logs"`
	Stats               *runner.Stats `json:"stats,omitempty"`
	StartTime           *time.Time    `json:"startTime,omitempty"`
	EndTime             *time.Time    `json:"endTime,omitempty"`
	AttachedSessionID   string        `json:"attachedSessionId,omitempty"`
	ErrorMessage        string        `json:"errorMessage,omitempty"`
	Reconnected         bool          `json:"reconnected"`
}

type logLineView struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
}

func viewOf(state runner.RunState) stateView {
	view := stateView{
		ClientID:            state.ClientID,
		Status:              string(state.Status),
		CorrelationID:       state.CorrelationID,
		EntityType:          state.Config.EntityType,
		TargetPlatform:      state.Config.TargetPlatform,
		SourceOfTruth:       state.Config.SourceOfTruth,
		EnqueueProvisioning: state.Config.EnqueueProvisioning,
		Logs:                make([]logLineView, 0, len(state.Logs)),
		Stats:               state.Stats,
		AttachedSessionID:   state.AttachedSessionID,
		ErrorMessage:        state.ErrorMessage,
		Reconnected:         state.Reconnected,
	}
	for _, line := range state.Logs {
		view.Logs = append(view.Logs, logLineView(line))
	}
	if !state.StartTime.IsZero() {
		t := state.StartTime
		view.StartTime = &t
	}
	if !state.EndTime.IsZero() {
		t := state.EndTime
		view.EndTime = &t
	}
	return view
}
