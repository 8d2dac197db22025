package runner

// RunObserver receives run lifecycle updates for UI or logging. Callbacks
// are invoked outside the runner's lock; calling back into the Runner is
// safe.
type RunObserver interface {
	// OnTransition delivers a state snapshot after every status change and
	// after each batch of appended log lines.
	OnTransition(state RunState)
	// OnLogLine delivers each newly appended run log entry in order.
	OnLogLine(line LogLine)
	// OnPollWarning reports a transient progress fetch failure; polling
	// continues on the next tick.
	OnPollWarning(correlationID string, err error)
}

// NopObserver discards all updates.
type NopObserver struct{}

// OnTransition implements RunObserver.
func (NopObserver) OnTransition(RunState) {}

// OnLogLine implements RunObserver.
func (NopObserver) OnLogLine(LogLine) {}

// OnPollWarning implements RunObserver.
func (NopObserver) OnPollWarning(string, error) {}
