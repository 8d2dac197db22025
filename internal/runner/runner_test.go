package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/session"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/testutil"
)

const (
	waitTimeout  = 2 * time.Second
	waitInterval = 2 * time.Millisecond
)

// fakeService scripts the sync service. Start blocks until the run is
// released, mirroring the long-poll trigger; Progress serves scripted
// batches in order, repeating the last one.
type fakeService struct {
	mu           sync.Mutex
	startOutcome syncsvc.TriggerOutcome
	startErr     error
	startCalls   int
	release      chan struct{}
	batches      [][]syncsvc.ProgressEvent
	progressErr  error
	finalRecords []map[string]any
	finalErr     error
	finalCalls   int
	cancelErr    error
	cancelCalls  int
}

func newFakeService() *fakeService {
	return &fakeService{release: make(chan struct{})}
}

func (f *fakeService) Start(ctx context.Context, clientID, sourceOfTruth, entityType string, opts syncsvc.StartOptions) (syncsvc.TriggerOutcome, error) {
	f.mu.Lock()
	f.startCalls++
	err := f.startErr
	outcome := f.startOutcome
	release := f.release
	f.mu.Unlock()
	if err != nil {
		return syncsvc.TriggerOutcome{}, err
	}
	select {
	case <-release:
	case <-ctx.Done():
		return syncsvc.TriggerOutcome{}, ctx.Err()
	}
	return outcome, nil
}

func (f *fakeService) Progress(ctx context.Context, correlationID string) ([]syncsvc.ProgressEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

func (f *fakeService) FinalStats(ctx context.Context, clientID, correlationID string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalCalls++
	return f.finalRecords, f.finalErr
}

func (f *fakeService) Cancel(ctx context.Context, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeService) calls() (start, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.cancelCalls
}

func event(id, message, level string) syncsvc.ProgressEvent {
	return syncsvc.ProgressEvent{ID: id, Message: message, Timestamp: "2026-03-02T10:00:00Z", Level: level}
}

func testConfig() RunConfig {
	return RunConfig{EntityType: "students", TargetPlatform: "all", SourceOfTruth: "powerschool"}
}

func newTestRunner(svc Service, store session.Store) *Runner {
	return New(svc, store, nil, Deps{PollInterval: waitInterval})
}

func waitForStatus(t *testing.T, run *Runner, status Status) RunState {
	t.Helper()
	testutil.Eventually(t, waitTimeout, waitInterval, func() bool {
		return run.State().Status == status
	}, fmt.Sprintf("runner never reached status %s, got %s", status, run.State().Status))
	return run.State()
}

func logMessages(state RunState) []string {
	out := make([]string, 0, len(state.Logs))
	for _, line := range state.Logs {
		out = append(out, line.Message)
	}
	return out
}

func countLog(state RunState, message string) int {
	n := 0
	for _, line := range state.Logs {
		if line.Message == message {
			n++
		}
	}
	return n
}

// TestRunHappyPath drives a run from trigger to success through the
// progress stream, checking stats merging, session cleanup, and the
// final stats top-up.
func TestRunHappyPath(t *testing.T) {
	svc := newFakeService()
	svc.batches = [][]syncsvc.ProgressEvent{
		{
			event("e1", "Fetching records", "info"),
			event("e2", `STATS: {"sync":{"RecordCount":5}}`, "info"),
		},
		{
			event("e1", "Fetching records", "info"),
			event("e2", `STATS: {"sync":{"RecordCount":5}}`, "info"),
			event("e3", "Sync sequence completed", "info"),
		},
	}
	svc.finalRecords = []map[string]any{{
		"sync":           map[string]any{"RecordCount": float64(10)},
		"RuleMatchCount": float64(3),
	}}
	store := session.NewMemoryStore()
	run := newTestRunner(svc, store)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	state := waitForStatus(t, run, StatusSuccess)

	if state.EndTime.IsZero() {
		t.Fatalf("expected end time to be set")
	}
	if countLog(state, "Fetching records") != 1 {
		t.Fatalf("expected deduplicated log, got %v", logMessages(state))
	}
	if _, ok, _ := store.Load("client-1"); ok {
		t.Fatalf("expected session cleared after terminal transition")
	}
	testutil.Eventually(t, waitTimeout, waitInterval, func() bool {
		s := run.State()
		if s.Stats == nil {
			return false
		}
		return s.Stats.Sync["RecordCount"] == float64(10)
	}, "final stats were not merged")
	final := run.State()
	if final.Stats.Rules["RuleMatchCount"] != float64(3) {
		t.Fatalf("expected rule match count from final stats, got %+v", final.Stats)
	}
}

// TestRunPersistsSessionBeforeTrigger checks the crash-safety ordering:
// the snapshot must be durable before the trigger request goes out.
func TestRunPersistsSessionBeforeTrigger(t *testing.T) {
	svc := newFakeService()
	store := &orderingStore{inner: session.NewMemoryStore(), svc: svc}
	run := newTestRunner(svc, store)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.startCallsAtSave != 0 {
		t.Fatalf("trigger was issued before the session was saved")
	}
	snapshot, ok, _ := store.inner.Load("client-1")
	if !ok {
		t.Fatalf("expected persisted session")
	}
	if snapshot.CorrelationID != run.State().CorrelationID {
		t.Fatalf("snapshot correlation %q does not match run %q", snapshot.CorrelationID, run.State().CorrelationID)
	}
}

type orderingStore struct {
	inner            *session.MemoryStore
	svc              *fakeService
	startCallsAtSave int
}

func (s *orderingStore) Save(clientID string, snapshot session.Snapshot) error {
	s.startCallsAtSave, _ = s.svc.calls()
	return s.inner.Save(clientID, snapshot)
}

func (s *orderingStore) Load(clientID string) (session.Snapshot, bool, error) {
	return s.inner.Load(clientID)
}

func (s *orderingStore) Clear(clientID string) error {
	return s.inner.Clear(clientID)
}

// TestRunAbortsWhenSessionSaveFails checks that a failed session write
// prevents the trigger entirely.
func TestRunAbortsWhenSessionSaveFails(t *testing.T) {
	svc := newFakeService()
	run := newTestRunner(svc, failingStore{})
	defer run.Close()

	err := run.Run(context.Background(), "client-1", testConfig())
	if err == nil {
		t.Fatalf("expected error from failed session save")
	}
	if got := run.State().Status; got != StatusIdle {
		t.Fatalf("expected idle after aborted run, got %s", got)
	}
	starts, _ := svc.calls()
	if starts != 0 {
		t.Fatalf("trigger must not fire when the session save fails, got %d calls", starts)
	}
}

type failingStore struct{}

func (failingStore) Save(string, session.Snapshot) error        { return fmt.Errorf("disk full") }
func (failingStore) Load(string) (session.Snapshot, bool, error) { return session.Snapshot{}, false, nil }
func (failingStore) Clear(string) error                          { return nil }

// TestRunRejectsConcurrentRun checks that a second run cannot start
// while one is being observed.
func TestRunRejectsConcurrentRun(t *testing.T) {
	svc := newFakeService()
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := run.Run(context.Background(), "client-1", testConfig()); err == nil {
		t.Fatalf("expected second run to be rejected")
	}
}

// TestConflictBlocksThenJoin drives the 409 path: the run turns blocked
// carrying the conflicting correlation id, and joining observes that run
// without a second trigger.
func TestConflictBlocksThenJoin(t *testing.T) {
	svc := newFakeService()
	svc.startErr = &syncsvc.AlreadyRunningError{Message: "sync already running", CorrelationID: "R1"}
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	state := waitForStatus(t, run, StatusBlocked)
	if state.AttachedSessionID != "R1" {
		t.Fatalf("expected attached session R1, got %q", state.AttachedSessionID)
	}
	if state.ErrorMessage == "" {
		t.Fatalf("expected blocked state to carry the conflict message")
	}

	svc.mu.Lock()
	svc.batches = [][]syncsvc.ProgressEvent{{event("j1", "Still syncing", "info")}}
	svc.mu.Unlock()

	if err := run.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	joined := run.State()
	if joined.Status != StatusRunning || joined.CorrelationID != "R1" {
		t.Fatalf("expected running on R1, got %s on %q", joined.Status, joined.CorrelationID)
	}
	if joined.AttachedSessionID != "" {
		t.Fatalf("expected join offer consumed")
	}
	if countLog(joined, "Joined existing sync session R1") != 1 {
		t.Fatalf("expected join log line, got %v", logMessages(joined))
	}
	starts, _ := svc.calls()
	if starts != 1 {
		t.Fatalf("join must not trigger a new run, got %d trigger calls", starts)
	}
	testutil.Eventually(t, waitTimeout, waitInterval, func() bool {
		return countLog(run.State(), "Still syncing") == 1
	}, "joined run was not polled")
}

// TestJoinRequiresBlockedState checks that join is rejected outside the
// blocked state.
func TestJoinRequiresBlockedState(t *testing.T) {
	run := newTestRunner(newFakeService(), nil)
	defer run.Close()
	if err := run.Join(context.Background()); err == nil {
		t.Fatalf("expected join to fail from idle")
	}
}

// TestCancellationOutranksErrorMarkers checks classification priority
// when a batch carries both error lines and a cancellation marker.
func TestCancellationOutranksErrorMarkers(t *testing.T) {
	svc := newFakeService()
	svc.batches = [][]syncsvc.ProgressEvent{{
		event("e1", "Mapping error on record 44", "error"),
		event("e2", "Sync cancelled by user", "info"),
	}}
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	state := waitForStatus(t, run, StatusCancelled)
	if state.ErrorMessage != "" {
		t.Fatalf("cancelled runs carry no error message, got %q", state.ErrorMessage)
	}
}

// TestErrorCompletionKeepsStats checks that a run completing with error
// markers lands on error and keeps the stats gathered along the way.
func TestErrorCompletionKeepsStats(t *testing.T) {
	svc := newFakeService()
	svc.batches = [][]syncsvc.ProgressEvent{{
		event("e1", `STATS: {"sync":{"RecordCount":10}}`, "info"),
		event("e2", "Mapping error on record 44", "error"),
		event("e3", "Sync sequence completed", "info"),
	}}
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	state := waitForStatus(t, run, StatusError)
	if !strings.Contains(state.ErrorMessage, "Mapping error") {
		t.Fatalf("expected error detail from the deciding event, got %q", state.ErrorMessage)
	}
	if state.Stats == nil || state.Stats.Sync["RecordCount"] != float64(10) {
		t.Fatalf("expected stats preserved on error, got %+v", state.Stats)
	}
}

// TestStopRequestsCancellation checks that stop sends the cancel request
// but leaves the run observed until the server confirms.
func TestStopRequestsCancellation(t *testing.T) {
	svc := newFakeService()
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := run.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_, cancels := svc.calls()
	if cancels != 1 {
		t.Fatalf("expected one cancel request, got %d", cancels)
	}
	if got := run.State().Status; got != StatusRunning {
		t.Fatalf("status must stay running until confirmation, got %s", got)
	}

	svc.mu.Lock()
	svc.batches = [][]syncsvc.ProgressEvent{{event("e1", "Sync cancelled", "info")}}
	svc.mu.Unlock()
	waitForStatus(t, run, StatusCancelled)
}

// TestStopReportsFailedCancelAsLogLine checks that a failed cancel
// request degrades to a warning line instead of an error.
func TestStopReportsFailedCancelAsLogLine(t *testing.T) {
	svc := newFakeService()
	svc.cancelErr = fmt.Errorf("boom")
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := run.Stop(context.Background()); err != nil {
		t.Fatalf("stop must not fail on a failed cancel request: %v", err)
	}
	testutil.Eventually(t, waitTimeout, waitInterval, func() bool {
		for _, line := range run.State().Logs {
			if strings.HasPrefix(line.Message, "Cancellation request failed") && line.Level == "warn" {
				return true
			}
		}
		return false
	}, "expected a warn log line for the failed cancel request")
	if got := run.State().Status; got != StatusRunning {
		t.Fatalf("expected running after failed cancel, got %s", got)
	}
}

// TestAttachLinkTakesPrecedence checks deep-link attach, its one-shot
// guard, and that a later session attach is skipped.
func TestAttachLinkTakesPrecedence(t *testing.T) {
	svc := newFakeService()
	store := session.NewMemoryStore()
	_ = store.Save("client-1", session.Snapshot{CorrelationID: "R9", EntityType: "staff", SourceOfTruth: "isams"})
	run := newTestRunner(svc, store)
	defer run.Close()

	params := Bootstrap{ClientID: "client-1", CorrelationID: "link-7", SourceOfTruth: "powerschool", EntityType: "students"}
	if !run.AttachLink(context.Background(), params) {
		t.Fatalf("expected deep-link attach")
	}
	state := run.State()
	if state.CorrelationID != "link-7" || !state.Reconnected {
		t.Fatalf("expected reconnected state on link-7, got %+v", state)
	}
	if countLog(state, "Attached to running sync via link") != 1 {
		t.Fatalf("expected attach log line, got %v", logMessages(state))
	}

	if run.AttachLink(context.Background(), params) {
		t.Fatalf("deep-link attach must fire at most once")
	}
	attached, err := run.AttachSession(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("attach session: %v", err)
	}
	if attached {
		t.Fatalf("session attach must be skipped after a deep-link attach")
	}
}

// TestAttachSessionRestoresSnapshot checks reconnection from the
// persisted session store.
func TestAttachSessionRestoresSnapshot(t *testing.T) {
	svc := newFakeService()
	store := session.NewMemoryStore()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_ = store.Save("client-1", session.Snapshot{
		CorrelationID:       "R9",
		EntityType:          "staff",
		TargetPlatform:      "cloud",
		SourceOfTruth:       "isams",
		EnqueueProvisioning: true,
		StartTime:           start,
	})
	run := newTestRunner(svc, store)
	defer run.Close()

	attached, err := run.AttachSession(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("attach session: %v", err)
	}
	if !attached {
		t.Fatalf("expected session attach")
	}
	state := run.State()
	if state.CorrelationID != "R9" || state.Status != StatusRunning || !state.Reconnected {
		t.Fatalf("unexpected state after session attach: %+v", state)
	}
	if state.Config.EntityType != "staff" || !state.Config.EnqueueProvisioning {
		t.Fatalf("expected config restored from snapshot, got %+v", state.Config)
	}
	if !state.StartTime.Equal(start) {
		t.Fatalf("expected start time restored from snapshot, got %v", state.StartTime)
	}
	if countLog(state, "Reconnected to in-flight sync for client client-1") != 1 {
		t.Fatalf("expected reconnect log line, got %v", logMessages(state))
	}
}

// TestAttachSessionAbsent checks that a missing session leaves the
// runner idle and usable.
func TestAttachSessionAbsent(t *testing.T) {
	run := newTestRunner(newFakeService(), session.NewMemoryStore())
	defer run.Close()
	attached, err := run.AttachSession(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("attach session: %v", err)
	}
	if attached {
		t.Fatalf("expected no attach for a missing session")
	}
	if got := run.State().Status; got != StatusIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

// TestDismissResetsState checks that dismissing a reconnected run clears
// both the in-memory state and the persisted session.
func TestDismissResetsState(t *testing.T) {
	svc := newFakeService()
	store := session.NewMemoryStore()
	_ = store.Save("client-1", session.Snapshot{CorrelationID: "R9", EntityType: "students", SourceOfTruth: "powerschool"})
	run := newTestRunner(svc, store)
	defer run.Close()

	if attached, _ := run.AttachSession(context.Background(), "client-1"); !attached {
		t.Fatalf("expected session attach")
	}
	run.Dismiss()
	state := run.State()
	if state.Status != StatusIdle || state.Reconnected || state.CorrelationID != "" {
		t.Fatalf("expected clean idle state, got %+v", state)
	}
	if _, ok, _ := store.Load("client-1"); ok {
		t.Fatalf("expected persisted session cleared on dismiss")
	}
}

// TestFreshRunIsolatedFromPreviousState checks that starting a new run
// resets logs, stats, and the dedup set from a previous run.
func TestFreshRunIsolatedFromPreviousState(t *testing.T) {
	svc := newFakeService()
	svc.batches = [][]syncsvc.ProgressEvent{{
		event("e1", `STATS: {"sync":{"RecordCount":4}}`, "info"),
		event("e2", "Sync cancelled", "info"),
	}}
	run := newTestRunner(svc, nil)
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	first := waitForStatus(t, run, StatusCancelled)

	svc.mu.Lock()
	svc.batches = nil
	svc.release = make(chan struct{})
	svc.mu.Unlock()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := run.State()
	if second.CorrelationID == first.CorrelationID {
		t.Fatalf("expected a fresh correlation id")
	}
	if second.Stats != nil {
		t.Fatalf("expected stats reset, got %+v", second.Stats)
	}
	if countLog(second, "Sync cancelled") != 0 {
		t.Fatalf("expected logs reset, got %v", logMessages(second))
	}
	if !second.EndTime.IsZero() {
		t.Fatalf("expected end time cleared for the new run")
	}
}

// TestPollWarningsDoNotChangeState checks that transient progress
// failures only surface through the observer warning channel.
func TestPollWarningsDoNotChangeState(t *testing.T) {
	svc := newFakeService()
	svc.progressErr = fmt.Errorf("http 503")
	warnings := make(chan error, 8)
	run := New(svc, nil, warningObserver{warnings}, Deps{PollInterval: waitInterval})
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case <-warnings:
	case <-time.After(waitTimeout):
		t.Fatalf("expected a poll warning")
	}
	if got := run.State().Status; got != StatusRunning {
		t.Fatalf("expected running despite poll failures, got %s", got)
	}
}

type warningObserver struct {
	warnings chan error
}

func (o warningObserver) OnTransition(RunState) {}
func (o warningObserver) OnLogLine(LogLine)     {}
func (o warningObserver) OnPollWarning(_ string, err error) {
	select {
	case o.warnings <- err:
	default:
	}
}

// TestEndTimeFromClock checks terminal timestamps come from the injected
// clock.
func TestEndTimeFromClock(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	svc := newFakeService()
	run := New(svc, nil, nil, Deps{Now: clock.Now, PollInterval: waitInterval})
	defer run.Close()

	if err := run.Run(context.Background(), "client-1", testConfig()); err != nil {
		t.Fatalf("run: %v", err)
	}
	clock.Advance(90 * time.Second)
	svc.mu.Lock()
	svc.batches = [][]syncsvc.ProgressEvent{{event("e1", "Sync cancelled", "info")}}
	svc.mu.Unlock()
	state := waitForStatus(t, run, StatusCancelled)
	if !state.StartTime.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start time %v", state.StartTime)
	}
	if !state.EndTime.Equal(state.StartTime.Add(90 * time.Second)) {
		t.Fatalf("unexpected end time %v", state.EndTime)
	}
}
