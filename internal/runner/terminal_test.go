package runner

import (
	"testing"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
)

func progressLine(message, level string) syncsvc.ProgressEvent {
	return syncsvc.ProgressEvent{Message: message, Level: level}
}

// TestClassifyBatchNoMarkers checks that ordinary progress lines do not
// terminate a run.
func TestClassifyBatchNoMarkers(t *testing.T) {
	outcome, _ := ClassifyBatch([]syncsvc.ProgressEvent{
		progressLine("Fetching 120 records", "info"),
		progressLine("Mapping attributes", "info"),
	})
	if outcome != OutcomeNone {
		t.Fatalf("expected no outcome, got %d", outcome)
	}
}

// TestClassifyBatchCompletionVariants checks the phrase list across the
// generations of the sync job, case-insensitively.
func TestClassifyBatchCompletionVariants(t *testing.T) {
	for _, message := range []string{
		"Sync sequence completed",
		"SYNC COMPLETE",
		"sync_complete",
		"The sync run finished at 10:00",
	} {
		outcome, _ := ClassifyBatch([]syncsvc.ProgressEvent{progressLine(message, "info")})
		if outcome != OutcomeSuccess {
			t.Fatalf("expected success for %q, got %d", message, outcome)
		}
	}
}

// TestClassifyBatchErrorLevel checks that a completed batch with an
// error-level event classifies as error and reports the deciding event.
func TestClassifyBatchErrorLevel(t *testing.T) {
	outcome, detail := ClassifyBatch([]syncsvc.ProgressEvent{
		progressLine("Mapping failed on record 44", "ERROR"),
		progressLine("Sync sequence completed", "info"),
	})
	if outcome != OutcomeError {
		t.Fatalf("expected error, got %d", outcome)
	}
	if detail != "Mapping failed on record 44" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

// TestClassifyBatchErrorSubstring checks the message-text fallback for
// jobs that never set a level.
func TestClassifyBatchErrorSubstring(t *testing.T) {
	outcome, _ := ClassifyBatch([]syncsvc.ProgressEvent{
		progressLine("3 errors during provisioning", ""),
		progressLine("Sync complete", ""),
	})
	if outcome != OutcomeError {
		t.Fatalf("expected error, got %d", outcome)
	}
}

// TestClassifyBatchStatsFieldNamesAreNotErrors checks that metric field
// names inside a stats payload do not trip the error scan.
func TestClassifyBatchStatsFieldNamesAreNotErrors(t *testing.T) {
	outcome, _ := ClassifyBatch([]syncsvc.ProgressEvent{
		progressLine(`STATS: {"rules":{"RuleErrorCount":0}}`, "info"),
		progressLine("Sync sequence completed", "info"),
	})
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %d", outcome)
	}
}

// TestClassifyBatchCancellationWins checks that cancellation outranks
// both completion and error markers in the same batch.
func TestClassifyBatchCancellationWins(t *testing.T) {
	outcome, _ := ClassifyBatch([]syncsvc.ProgressEvent{
		progressLine("Provisioning error on record 9", "error"),
		progressLine("Sync sequence completed", "info"),
		progressLine("Run cancelled", "info"),
	})
	if outcome != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %d", outcome)
	}
}
