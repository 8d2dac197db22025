// Package session records believed-in-flight sync runs per client so a
// restarted console can reconnect to them. The run state machine is the
// only writer; a record exists exactly while a run is believed active.
package session

import "time"

// Snapshot is the durable record of an in-flight run.
type Snapshot struct {
	CorrelationID       string    `json:"correlationId"`
	EntityType          string    `json:"entityType"`
	TargetPlatform      string    `json:"targetPlatform"`
	SourceOfTruth       string    `json:"sourceOfTruth"`
	EnqueueProvisioning bool      `json:"enqueueProvisioning"`
	StartTime           time.Time `json:"startTime"`
}

// Store persists at most one snapshot per client id. Load returns
// (zero, false, nil) when no usable snapshot exists; malformed stored
// values are cleared and treated as absent rather than surfaced.
type Store interface {
	Save(clientID string, snapshot Snapshot) error
	Load(clientID string) (Snapshot, bool, error)
	Clear(clientID string) error
}
