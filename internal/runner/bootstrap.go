package runner

import "net/url"

// Bootstrap carries the deep-link parameters an instance was launched
// with: enough to attach to an already-running sync without triggering a
// new one.
type Bootstrap struct {
	ClientID      string
	CorrelationID string
	SourceOfTruth string
	EntityType    string
}

// HasCorrelation reports whether the parameters identify a run to attach
// to.
func (b Bootstrap) HasCorrelation() bool {
	return b.CorrelationID != ""
}

// ParseQuery reads bootstrap parameters from a deep-link query string.
// Key names match the share links the console emits.
func ParseQuery(values url.Values) Bootstrap {
	return Bootstrap{
		ClientID:      values.Get("clientId"),
		CorrelationID: values.Get("correlationId"),
		SourceOfTruth: values.Get("sot"),
		EntityType:    values.Get("entityType"),
	}
}

// BootstrapFromEnv reads bootstrap parameters from the environment, the
// transport used when another tool launches the console.
func BootstrapFromEnv(lookup func(string) string) Bootstrap {
	if lookup == nil {
		return Bootstrap{}
	}
	return Bootstrap{
		ClientID:      lookup("PIPSYNC_CLIENT_ID"),
		CorrelationID: lookup("PIPSYNC_CORRELATION_ID"),
		SourceOfTruth: lookup("PIPSYNC_SOT"),
		EntityType:    lookup("PIPSYNC_ENTITY_TYPE"),
	}
}
