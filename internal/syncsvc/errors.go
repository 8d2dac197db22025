package syncsvc

import "fmt"

// AlreadyRunningError reports a trigger rejected because a sync is already
// active for the client. CorrelationID, when the service returned one,
// identifies the conflicting run and can be joined.
type AlreadyRunningError struct {
	Message       string
	CorrelationID string
}

func (e *AlreadyRunningError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "a sync is already running for this client"
}

// TriggerError reports a trigger failure other than a conflict: transport
// errors and non-2xx responses.
type TriggerError struct {
	StatusCode int
	Message    string
}

func (e *TriggerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("sync trigger failed with status %d", e.StatusCode)
}
