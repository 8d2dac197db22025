package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "history.duckdb"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleEntry(correlationID string, ended time.Time) Entry {
	return Entry{
		CorrelationID:  correlationID,
		ClientID:       "client-1",
		EntityType:     "students",
		SourceOfTruth:  "powerschool",
		TargetPlatform: "all",
		Status:         "success",
		StartedAt:      ended.Add(-time.Minute),
		EndedAt:        ended,
		RecordCount:    10,
	}
}

// TestRecordAndRecent checks persistence and the most-recent-first
// ordering.
func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleEntry("R1", base)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, sampleEntry("R2", base.Add(time.Hour))); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CorrelationID != "R2" || entries[1].CorrelationID != "R1" {
		t.Fatalf("unexpected order: %s, %s", entries[0].CorrelationID, entries[1].CorrelationID)
	}
	if entries[0].RecordCount != 10 || entries[0].Status != "success" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

// TestRecordUpserts checks re-recording the same run replaces, not
// duplicates.
func TestRecordUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := sampleEntry("R1", base)
	_ = store.Record(ctx, entry)
	entry.Status = "error"
	entry.ErrorMessage = "mapping failed"
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].ErrorMessage != "mapping failed" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

// TestRecordRequiresCorrelationID checks the primary key guard.
func TestRecordRequiresCorrelationID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Record(context.Background(), Entry{ClientID: "client-1"}); err == nil {
		t.Fatalf("expected error without correlation id")
	}
}

// TestEntryFromStats checks the numeric column extraction and the JSON
// snapshot.
func TestEntryFromStats(t *testing.T) {
	entry := EntryFromStats(Entry{CorrelationID: "R1"},
		map[string]any{"RecordCount": float64(12)},
		map[string]any{"RuleMatchCount": float64(3), "RuleErrorCount": float64(1)})
	if entry.RecordCount != 12 || entry.RuleMatchCount != 3 || entry.RuleErrorCount != 1 {
		t.Fatalf("unexpected counts %+v", entry)
	}
	if entry.StatsJSON == "" {
		t.Fatalf("expected stats snapshot")
	}
}

// TestRecorderSkipsBlockedAndDuplicates checks the observer records each
// finished run once and ignores blocked outcomes.
func TestRecorderSkipsBlockedAndDuplicates(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store, nil)
	ended := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	state := runner.RunState{
		ClientID:      "client-1",
		Status:        runner.StatusSuccess,
		CorrelationID: "R1",
		Config:        runner.RunConfig{EntityType: "students", SourceOfTruth: "powerschool"},
		StartTime:     ended.Add(-time.Minute),
		EndTime:       ended,
	}
	recorder.OnTransition(state)
	recorder.OnTransition(state)
	recorder.OnTransition(runner.RunState{
		Status:            runner.StatusBlocked,
		CorrelationID:     "R2",
		AttachedSessionID: "R9",
		EndTime:           ended,
	})

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].CorrelationID != "R1" {
		t.Fatalf("expected exactly the finished run recorded, got %+v", entries)
	}
}
