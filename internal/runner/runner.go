// Package runner owns the client-side state machine for observing
// server-side sync runs: triggering, polling, cross-restart reconnection,
// conflict joining, and cooperative cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/session"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
)

// Service is the sync service surface the runner depends on.
// *syncsvc.Client satisfies it; tests substitute fakes.
type Service interface {
	Start(ctx context.Context, clientID, sourceOfTruth, entityType string, opts syncsvc.StartOptions) (syncsvc.TriggerOutcome, error)
	Progress(ctx context.Context, correlationID string) ([]syncsvc.ProgressEvent, error)
	FinalStats(ctx context.Context, clientID, correlationID string) ([]map[string]any, error)
	Cancel(ctx context.Context, correlationID string) error
}

// Deps are the runner's injectable collaborators; nil fields take
// defaults.
type Deps struct {
	Now              func() time.Time
	NewCorrelationID func() string
	PollInterval     time.Duration
}

// DefaultPollInterval is the progress polling cadence.
const DefaultPollInterval = 2 * time.Second

// Runner is the run state machine. All exported methods are safe for
// concurrent use; every asynchronous continuation re-checks that the run
// it was issued for is still the active one before applying effects.
type Runner struct {
	mu          sync.Mutex
	state       RunState
	seen        map[string]struct{}
	attachFired bool
	pollCancel  context.CancelFunc

	svc      Service
	sessions session.Store
	observer RunObserver

	now              func() time.Time
	newCorrelationID func() string
	pollInterval     time.Duration
}

// New constructs a runner. A nil sessions store falls back to an
// in-memory one; a nil observer discards updates.
func New(svc Service, sessions session.Store, observer RunObserver, deps Deps) *Runner {
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewCorrelationID
	if newID == nil {
		newID = uuid.NewString
	}
	interval := deps.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runner{
		state:            RunState{Status: StatusIdle},
		seen:             map[string]struct{}{},
		svc:              svc,
		sessions:         sessions,
		observer:         observer,
		now:              now,
		newCorrelationID: newID,
		pollInterval:     interval,
	}
}

// State returns a deep copy of the current run state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Run starts a wholly new sync run: fresh correlation id, cleared logs,
// stats, and dedup set. The session snapshot is persisted synchronously
// before the trigger request is issued.
func (r *Runner) Run(ctx context.Context, clientID string, cfg RunConfig) error {
	if clientID == "" {
		return fmt.Errorf("client id is required")
	}
	if cfg.SourceOfTruth == "" {
		return fmt.Errorf("source of truth is required")
	}
	if cfg.EntityType == "" {
		return fmt.Errorf("entity type is required")
	}

	r.mu.Lock()
	if r.state.Status == StatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("a sync run is already being observed")
	}
	correlationID := r.newCorrelationID()
	startTime := r.now()
	r.state = RunState{
		ClientID:      clientID,
		Status:        StatusRunning,
		CorrelationID: correlationID,
		Config:        cfg,
		StartTime:     startTime,
	}
	r.seen = map[string]struct{}{}
	snapshot := session.Snapshot{
		CorrelationID:       correlationID,
		EntityType:          cfg.EntityType,
		TargetPlatform:      cfg.TargetPlatform,
		SourceOfTruth:       cfg.SourceOfTruth,
		EnqueueProvisioning: cfg.EnqueueProvisioning,
		StartTime:           startTime,
	}
	if err := r.sessions.Save(clientID, snapshot); err != nil {
		r.state = RunState{ClientID: clientID, Status: StatusIdle}
		r.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	line := r.appendLocalLogLocked(fmt.Sprintf("Starting %s sync for %s via %s", cfg.EntityType, clientID, cfg.SourceOfTruth))
	r.startPollLocked(ctx, correlationID, clientID)
	state := r.state.clone()
	r.mu.Unlock()

	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
	go r.runTrigger(ctx, correlationID, clientID, cfg)
	return nil
}

// Stop requests cooperative cancellation of the active run. The status
// stays running until the server confirms through the poll stream; a
// failed cancel request is reported as a log line only.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state.Status != StatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("no sync run in progress")
	}
	correlationID := r.state.CorrelationID
	line := r.appendLocalLogLocked("Cancellation requested")
	state := r.state.clone()
	r.mu.Unlock()
	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)

	if err := r.svc.Cancel(ctx, correlationID); err != nil {
		r.appendLog(correlationID, "Cancellation request failed: "+err.Error(), "warn")
	}
	return nil
}

// Join attaches to the conflicting run offered by a blocked trigger. It
// behaves like an attach, not a fresh run: no trigger call, no session
// write, logs and stats reset for the joined observation.
func (r *Runner) Join(ctx context.Context) error {
	r.mu.Lock()
	if r.state.Status != StatusBlocked || r.state.AttachedSessionID == "" {
		r.mu.Unlock()
		return fmt.Errorf("no blocked session to join")
	}
	correlationID := r.state.AttachedSessionID
	r.state.CorrelationID = correlationID
	r.state.Status = StatusRunning
	r.state.AttachedSessionID = ""
	r.state.ErrorMessage = ""
	r.state.StartTime = r.now()
	r.state.EndTime = time.Time{}
	r.state.Logs = nil
	r.state.Stats = nil
	r.seen = map[string]struct{}{}
	line := r.appendLocalLogLocked("Joined existing sync session " + correlationID)
	r.startPollLocked(ctx, correlationID, r.state.ClientID)
	state := r.state.clone()
	r.mu.Unlock()

	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
	return nil
}

// AttachLink performs the deep-link attach transition. It fires at most
// once per runner lifetime and only from idle; it reports whether it
// attached. Deep links take precedence over persisted sessions, so
// callers must try this before AttachSession.
func (r *Runner) AttachLink(ctx context.Context, params Bootstrap) bool {
	if !params.HasCorrelation() {
		return false
	}
	r.mu.Lock()
	if r.attachFired || r.state.Status != StatusIdle {
		r.mu.Unlock()
		return false
	}
	r.attachFired = true
	if params.ClientID != "" {
		r.state.ClientID = params.ClientID
	}
	if params.SourceOfTruth != "" {
		r.state.Config.SourceOfTruth = params.SourceOfTruth
	}
	if params.EntityType != "" {
		r.state.Config.EntityType = params.EntityType
	}
	r.state.CorrelationID = params.CorrelationID
	r.state.Status = StatusRunning
	r.state.StartTime = r.now()
	r.state.Reconnected = true
	line := r.appendLocalLogLocked("Attached to running sync via link")
	r.startPollLocked(ctx, params.CorrelationID, r.state.ClientID)
	state := r.state.clone()
	r.mu.Unlock()

	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
	return true
}

// AttachSession reconnects to a persisted session for a client, restoring
// its config snapshot. Evaluated only when no deep link attached first;
// fires at most once and only from idle.
func (r *Runner) AttachSession(ctx context.Context, clientID string) (bool, error) {
	r.mu.Lock()
	if r.attachFired || r.state.Status != StatusIdle {
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()

	snapshot, ok, err := r.sessions.Load(clientID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	if r.attachFired || r.state.Status != StatusIdle {
		r.mu.Unlock()
		return false, nil
	}
	r.attachFired = true
	r.state.ClientID = clientID
	r.state.CorrelationID = snapshot.CorrelationID
	r.state.Config = RunConfig{
		EntityType:          snapshot.EntityType,
		TargetPlatform:      snapshot.TargetPlatform,
		SourceOfTruth:       snapshot.SourceOfTruth,
		EnqueueProvisioning: snapshot.EnqueueProvisioning,
	}
	r.state.Status = StatusRunning
	if snapshot.StartTime.IsZero() {
		r.state.StartTime = r.now()
	} else {
		r.state.StartTime = snapshot.StartTime
	}
	r.state.Reconnected = true
	line := r.appendLocalLogLocked("Reconnected to in-flight sync for client " + clientID)
	r.startPollLocked(ctx, snapshot.CorrelationID, clientID)
	state := r.state.clone()
	r.mu.Unlock()

	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
	return true, nil
}

// Dismiss drops a reconnection banner or a blocked join offer: the run
// state resets to idle and the persisted session is cleared.
func (r *Runner) Dismiss() {
	r.mu.Lock()
	if !r.state.Reconnected && r.state.Status != StatusBlocked {
		r.mu.Unlock()
		return
	}
	clientID := r.state.ClientID
	r.stopPollLocked()
	r.state = RunState{ClientID: clientID, Status: StatusIdle}
	r.seen = map[string]struct{}{}
	state := r.state.clone()
	r.mu.Unlock()

	_ = r.sessions.Clear(clientID)
	r.observer.OnTransition(state)
}

// Close tears the runner down, stopping any poll loop.
func (r *Runner) Close() {
	r.mu.Lock()
	r.stopPollLocked()
	r.mu.Unlock()
}

func (r *Runner) runTrigger(ctx context.Context, correlationID, clientID string, cfg RunConfig) {
	outcome, err := r.svc.Start(ctx, clientID, cfg.SourceOfTruth, cfg.EntityType, syncsvc.StartOptions{
		EnqueueProvisioning: cfg.EnqueueProvisioning,
		IncludeDefaults:     cfg.IncludeDefaults,
		Platform:            platformFilter(cfg.TargetPlatform),
		CorrelationID:       correlationID,
	})
	if err != nil {
		var conflict *syncsvc.AlreadyRunningError
		if errors.As(err, &conflict) {
			r.finish(correlationID, StatusBlocked, conflict.Error(), conflict.CorrelationID)
			return
		}
		r.finish(correlationID, StatusError, err.Error(), "")
		return
	}
	if outcome.Status == "cancelled" {
		r.finish(correlationID, StatusCancelled, "", "")
		return
	}
	r.completeSuccess(ctx, correlationID, clientID)
}

func (r *Runner) pollLoop(ctx context.Context, correlationID, clientID string) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		events, err := r.svc.Progress(ctx, correlationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.observer.OnPollWarning(correlationID, err)
			continue
		}
		if !r.applyBatch(ctx, correlationID, clientID, events) {
			return
		}
	}
}

// applyBatch folds a fetched progress batch into the run state. It
// reports false once the run this loop was polling is no longer active.
func (r *Runner) applyBatch(ctx context.Context, correlationID, clientID string, events []syncsvc.ProgressEvent) bool {
	r.mu.Lock()
	if !r.activeLocked(correlationID) {
		r.mu.Unlock()
		return false
	}
	var fresh []LogLine
	for _, event := range events {
		key := event.DedupKey()
		if key != "" {
			if _, dup := r.seen[key]; dup {
				continue
			}
			r.seen[key] = struct{}{}
		}
		line := LogLine{
			Timestamp: event.Timestamp,
			Message:   event.Message,
			Level:     normalizeLevel(event.Level),
		}
		r.state.Logs = append(r.state.Logs, line)
		fresh = append(fresh, line)
		if fragment, ok := ExtractStats(event.Message); ok {
			if r.state.Stats == nil {
				r.state.Stats = &Stats{}
			}
			r.state.Stats.Merge(fragment)
		}
	}
	outcome, detail := ClassifyBatch(events)
	var state RunState
	if len(fresh) > 0 && outcome == OutcomeNone {
		state = r.state.clone()
	}
	r.mu.Unlock()

	for _, line := range fresh {
		r.observer.OnLogLine(line)
	}
	switch outcome {
	case OutcomeCancelled:
		r.finish(correlationID, StatusCancelled, "", "")
		return false
	case OutcomeError:
		if detail == "" {
			detail = "sync completed with errors"
		}
		r.finish(correlationID, StatusError, detail, "")
		return false
	case OutcomeSuccess:
		r.completeSuccess(ctx, correlationID, clientID)
		return false
	}
	if len(fresh) > 0 {
		r.observer.OnTransition(state)
	}
	return true
}

// completeSuccess marks the run successful, then tops the stats up from
// the final stats endpoint. The extra fetch is best-effort and never
// changes the already-decided terminal status.
func (r *Runner) completeSuccess(ctx context.Context, correlationID, clientID string) {
	if !r.finish(correlationID, StatusSuccess, "", "") {
		return
	}
	records, err := r.svc.FinalStats(ctx, clientID, correlationID)
	if err != nil {
		r.observer.OnPollWarning(correlationID, fmt.Errorf("final stats fetch: %w", err))
		return
	}
	if len(records) == 0 {
		return
	}
	r.mu.Lock()
	if r.state.CorrelationID != correlationID {
		r.mu.Unlock()
		return
	}
	if r.state.Stats == nil {
		r.state.Stats = &Stats{}
	}
	r.state.Stats.MergeFinalRecords(records)
	state := r.state.clone()
	r.mu.Unlock()
	r.observer.OnTransition(state)
}

// finish applies a terminal transition for the given run. First writer
// wins: if the run is no longer active the call is a no-op and reports
// false. EndTime is set exactly once; the persisted session is cleared on
// every terminal transition.
func (r *Runner) finish(correlationID string, status Status, message, attachedSessionID string) bool {
	r.mu.Lock()
	if !r.activeLocked(correlationID) {
		r.mu.Unlock()
		return false
	}
	r.state.Status = status
	if r.state.EndTime.IsZero() {
		r.state.EndTime = r.now()
	}
	switch status {
	case StatusError, StatusBlocked:
		r.state.ErrorMessage = message
	default:
		r.state.ErrorMessage = ""
	}
	r.state.AttachedSessionID = attachedSessionID
	r.stopPollLocked()
	clientID := r.state.ClientID
	line := r.appendLocalLogLocked("Run ended with status " + string(status))
	state := r.state.clone()
	r.mu.Unlock()

	_ = r.sessions.Clear(clientID)
	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
	return true
}

// appendLog appends a locally generated log line if the run is still the
// current one.
func (r *Runner) appendLog(correlationID, message, level string) {
	r.mu.Lock()
	if r.state.CorrelationID != correlationID {
		r.mu.Unlock()
		return
	}
	line := LogLine{Timestamp: r.now().Format(time.RFC3339), Message: message, Level: level}
	r.state.Logs = append(r.state.Logs, line)
	state := r.state.clone()
	r.mu.Unlock()
	r.observer.OnLogLine(line)
	r.observer.OnTransition(state)
}

func (r *Runner) appendLocalLogLocked(message string) LogLine {
	line := LogLine{Timestamp: r.now().Format(time.RFC3339), Message: message, Level: "info"}
	r.state.Logs = append(r.state.Logs, line)
	return line
}

func (r *Runner) activeLocked(correlationID string) bool {
	return r.state.Status == StatusRunning && r.state.CorrelationID == correlationID
}

func (r *Runner) startPollLocked(ctx context.Context, correlationID, clientID string) {
	r.stopPollLocked()
	pollCtx, cancel := context.WithCancel(ctx)
	r.pollCancel = cancel
	go r.pollLoop(pollCtx, correlationID, clientID)
}

func (r *Runner) stopPollLocked() {
	if r.pollCancel != nil {
		r.pollCancel()
		r.pollCancel = nil
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return "info"
	}
	return level
}

// platformFilter maps the config's target platform to the trigger's
// filter field: "all" means no filter.
func platformFilter(targetPlatform string) string {
	if targetPlatform == "" || targetPlatform == "all" {
		return ""
	}
	return targetPlatform
}
