package runner

import (
	"strings"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
)

// Outcome is the terminal classification of a fetched progress batch.
type Outcome int

const (
	// OutcomeNone means the batch carries no terminal marker.
	OutcomeNone Outcome = iota
	// OutcomeSuccess means completion with no error markers.
	OutcomeSuccess
	// OutcomeError means completion with error markers.
	OutcomeError
	// OutcomeCancelled means the server reported the run as cancelled.
	OutcomeCancelled
)

// completionPhrases are the substrings, matched case-insensitively, that
// the sync job emits when it finishes. Several generations of the job are
// in the field, hence the variants.
var completionPhrases = []string{
	"sync sequence completed",
	"sync complete",
	"sync_complete",
	"sync run finished",
}

// cancellationPhrases mark server-confirmed cancellation. They outrank
// error markers, which outrank success.
var cancellationPhrases = []string{
	"sync cancelled",
	"sync_cancelled",
	"run cancelled",
	"cancelled by user",
}

// ClassifyBatch scans a full progress batch for terminal markers. The
// whole batch is scanned, not only unseen events, because a completion
// marker may have arrived combined with earlier lines. The second return
// is the message of the event that decided an error outcome, when any.
func ClassifyBatch(events []syncsvc.ProgressEvent) (Outcome, string) {
	completed := false
	for _, event := range events {
		lowered := strings.ToLower(event.Message)
		if containsAny(lowered, cancellationPhrases) {
			return OutcomeCancelled, event.Message
		}
		if containsAny(lowered, completionPhrases) {
			completed = true
		}
	}
	if !completed {
		return OutcomeNone, ""
	}
	for _, event := range events {
		if strings.EqualFold(event.Level, "error") {
			return OutcomeError, event.Message
		}
		stripped := strings.ToLower(StripStatsPayload(event.Message))
		if strings.Contains(stripped, "error") {
			return OutcomeError, event.Message
		}
	}
	return OutcomeSuccess, ""
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
