package runner

// Observers fans updates out to several observers in order.
type Observers []RunObserver

// OnTransition implements RunObserver.
func (o Observers) OnTransition(state RunState) {
	for _, observer := range o {
		observer.OnTransition(state)
	}
}

// OnLogLine implements RunObserver.
func (o Observers) OnLogLine(line LogLine) {
	for _, observer := range o {
		observer.OnLogLine(line)
	}
}

// OnPollWarning implements RunObserver.
func (o Observers) OnPollWarning(correlationID string, err error) {
	for _, observer := range o {
		observer.OnPollWarning(correlationID, err)
	}
}
