package runner

import "time"

// Status is the lifecycle state of an observed sync run.
type Status string

const (
	// StatusIdle marks no run started or attached.
	StatusIdle Status = "idle"
	// StatusRunning marks an in-flight run being polled.
	StatusRunning Status = "running"
	// StatusSuccess marks a run that completed without error markers.
	StatusSuccess Status = "success"
	// StatusError marks a run that completed with error markers or a
	// failed trigger.
	StatusError Status = "error"
	// StatusCancelled marks a run stopped by cooperative cancellation.
	StatusCancelled Status = "cancelled"
	// StatusBlocked marks a trigger rejected because another run is
	// already active; joining it is offered.
	StatusBlocked Status = "blocked"
)

// Terminal reports whether a status will not self-resume.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled, StatusBlocked:
		return true
	default:
		return false
	}
}

// RunConfig is the immutable parameter set of a run.
type RunConfig struct {
	// EntityType is "staff" or "students".
	EntityType string
	// TargetPlatform is "all", "cloud", or "onpremise".
	TargetPlatform string
	// SourceOfTruth names the school information system being synced from.
	SourceOfTruth string
	// EnqueueProvisioning also queues downstream provisioning work.
	EnqueueProvisioning bool
	// IncludeDefaults applies the platform's default attribute set.
	IncludeDefaults bool
}

// LogLine is one displayed entry of the run log.
type LogLine struct {
	Timestamp string
	Message   string
	Level     string
}

// RunState is the full observable state of the runner. Values returned by
// Runner.State are deep copies and safe to retain.
type RunState struct {
	ClientID      string
	Status        Status
	CorrelationID string
	Config        RunConfig
	Logs          []LogLine
	Stats         *Stats
	StartTime     time.Time
	EndTime       time.Time
	// AttachedSessionID holds the conflicting run's correlation id after a
	// blocked trigger, letting the operator join that run instead.
	AttachedSessionID string
	ErrorMessage      string
	// Reconnected marks states reconstructed from a deep link or a
	// persisted session, for banner display.
	Reconnected bool
}

func (s RunState) clone() RunState {
	out := s
	out.Logs = append([]LogLine(nil), s.Logs...)
	if s.Stats != nil {
		stats := s.Stats.clone()
		out.Stats = &stats
	}
	return out
}
